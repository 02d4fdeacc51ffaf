package service

import (
	"fmt"
	"image"
	"image/color"
	"os"

	// Registered for image.DecodeConfig
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"hostbin/file-api/internal/model"
)

// InspectImage reads just the header of a stored file and extracts
// image dimensions and pixel layout. It only parses metadata, never
// full pixel data, so it stays cheap even for large images. Any decode
// problem comes back as an error the caller is expected to ignore
func InspectImage(path string) (img *model.Image, err error) {
	// Decoders shouldn't panic on malformed input, but a bad file must
	// never take the whole upload down with it
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = fmt.Errorf("image decoder panicked: %v", r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stored file, %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header, %w", err)
	}

	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("decoded invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}

	bits, channels := pixelLayout(cfg.ColorModel)

	return &model.Image{
		Format:   format,
		Width:    cfg.Width,
		Height:   cfg.Height,
		Bits:     bits,
		Channels: channels,
	}, nil
}

// pixelLayout maps a color model to total bits per pixel and channel
// count. Unknown models fall back to 8 bits per channel RGBA
func pixelLayout(m color.Model) (bits, channels int) {
	switch m {
	case color.GrayModel:
		return 8, 1
	case color.Gray16Model:
		return 16, 1
	case color.YCbCrModel:
		return 24, 3
	case color.NYCbCrAModel:
		return 32, 4
	case color.CMYKModel:
		return 32, 4
	case color.RGBAModel, color.NRGBAModel:
		return 32, 4
	case color.RGBA64Model, color.NRGBA64Model:
		return 64, 4
	case color.AlphaModel:
		return 8, 1
	case color.Alpha16Model:
		return 16, 1
	}

	if _, ok := m.(color.Palette); ok {
		return 8, 1
	}

	return 32, 4
}
