package outlook

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mailrake/mailrake/pkg/browser"
	"github.com/mailrake/mailrake/pkg/mail"
	"github.com/mailrake/mailrake/pkg/reliability"
)

// cidPrefix marks an image whose original source was an inline email
// attachment referenced by content-id.
const cidPrefix = "cid:"

// extensionByContentType classifies fetched image payloads. Anything not
// listed is stored as generic binary.
var extensionByContentType = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

// ImageExtractor downloads the inline images of one message card.
// A single image failing never fails the message.
type ImageExtractor struct {
	log         *zerolog.Logger
	fetchPolicy reliability.Policy
}

// NewImageExtractor creates an inline image extractor.
func NewImageExtractor(log *zerolog.Logger, registry *reliability.Registry) *ImageExtractor {
	logger := log.With().Str("component", "image_extractor").Logger()
	return &ImageExtractor{
		log:         &logger,
		fetchPolicy: registry.Get(reliability.PolicyResourceFetch),
	}
}

// ExtractInlineImages walks the img elements of a message card and
// returns the content-id referenced ones with their fetched bytes.
func (e *ImageExtractor) ExtractInlineImages(ctx context.Context, page browser.Page, msg browser.Element) ([]mail.InlineImage, error) {
	imgs, err := msg.FindAll(ctx, "img")
	if err != nil {
		return nil, err
	}

	var result []mail.InlineImage
	for _, img := range imgs {
		alt, _ := img.GetAttribute(ctx, "alt")
		originalSrc, err := img.GetAttribute(ctx, "originalsrc")
		if err != nil || !strings.HasPrefix(originalSrc, cidPrefix) {
			continue
		}
		cid := strings.TrimPrefix(originalSrc, cidPrefix)

		src, err := img.GetAttribute(ctx, "src")
		if err != nil || src == "" || strings.HasPrefix(src, "data:") {
			continue
		}

		var resp *browser.FetchResponse
		fetchErr := e.fetchPolicy.Execute(ctx, func() error {
			var err error
			resp, err = page.Fetch(ctx, src)
			return err
		})
		if fetchErr != nil {
			e.log.Warn().Err(fetchErr).Str("cid", cid).Msg("Failed to download inline image")
			continue
		}
		if !resp.Ok() {
			e.log.Warn().Str("cid", cid).Int("status", resp.Status).Msg("Image fetch failed")
			continue
		}

		ext, ok := extensionByContentType[resp.ContentType()]
		if !ok {
			ext = ".bin"
		}

		result = append(result, mail.InlineImage{
			ContentID:     cid,
			AltText:       alt,
			SourceURI:     src,
			Bytes:         resp.Body,
			FileExtension: ext,
		})
		e.log.Debug().Str("cid", cid).Int("bytes", len(resp.Body)).Msg("Fetched inline image")
	}
	return result, nil
}
