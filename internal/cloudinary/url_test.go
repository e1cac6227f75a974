package cloudinary

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func demoBuilder() URLBuilder {
	return URLBuilder{
		BaseURL:   "https://res.cloudinary.com/",
		CloudName: "demo",
		Transform: "f_auto,q_auto",
		Folder:    "images",
	}
}

func TestDelivery_SynthesizedURLShape(t *testing.T) {
	got := demoBuilder().Delivery("bar.jpg")
	require.Equal(t, "https://res.cloudinary.com/demo/image/upload/f_auto,q_auto/images/bar.jpg", got)
}

func TestDelivery_SkipsEmptySegments(t *testing.T) {
	b := URLBuilder{
		BaseURL:   "https://res.cloudinary.com/",
		CloudName: "demo",
	}
	require.Equal(t, "https://res.cloudinary.com/demo/image/upload/bar.jpg", b.Delivery("bar.jpg"))
}

func TestIsDelivery(t *testing.T) {
	b := demoBuilder()
	require.True(t, b.IsDelivery("https://res.cloudinary.com/demo/image/upload/x.jpg"))
	require.False(t, b.IsDelivery("./images/x.jpg"))
	require.False(t, b.IsDelivery("https://example.com/x.jpg"))
}

func TestWidthVariant_SplicesIntoTransform(t *testing.T) {
	b := demoBuilder()
	url := "https://res.cloudinary.com/demo/image/upload/f_auto,q_auto/images/bar.jpg"
	require.Equal(t,
		"https://res.cloudinary.com/demo/image/upload/f_auto,q_auto,w_300/images/bar.jpg",
		b.WidthVariant(url, 300))
}

func TestWidthVariant_NoTransformSegment_InsertsAfterUpload(t *testing.T) {
	b := demoBuilder()
	url := "https://res.cloudinary.com/demo/image/upload/images/bar.jpg"
	require.Equal(t,
		"https://res.cloudinary.com/demo/image/upload/w_300/images/bar.jpg",
		b.WidthVariant(url, 300))
}

func TestInsertTransform_AfterUploadSegment(t *testing.T) {
	b := demoBuilder()
	secure := "https://res.cloudinary.com/demo/image/upload/v1712345/images/my-image.jpg"
	require.Equal(t,
		"https://res.cloudinary.com/demo/image/upload/f_auto,q_auto,w_1200/v1712345/images/my-image.jpg",
		b.InsertTransform(secure, 1200))
}

func TestInsertTransform_NoUploadSegment_ReturnsUnchanged(t *testing.T) {
	b := demoBuilder()
	require.Equal(t, "https://example.com/x.jpg", b.InsertTransform("https://example.com/x.jpg", 1200))
}

func TestFileName_NormalizesToNFC(t *testing.T) {
	// input spelled as e + combining acute accent (NFD)
	require.Equal(t, "caf\u00e9.jpg", FileName("/images/cafe\u0301.jpg"))
}

func TestPublicID_StripsExtension(t *testing.T) {
	require.Equal(t, "bar", PublicID("foo/bar.jpg"))
	require.Equal(t, "archive.tar", PublicID("archive.tar.gz"))
}
