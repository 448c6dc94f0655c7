package imageload

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Sample is one loaded image with its label.
type Sample struct {
	Name  string
	Label string
	Image image.Image
}

// Tensor is an image as height x width x channels bytes.
type Tensor struct {
	Shape []int  `json:"shape"`
	Data  []byte `json:"data"`
}

func resize(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// crop cuts the (x, y, width, height) rectangle relative to the image origin.
func crop(img image.Image, c CropConfig) (image.Image, error) {
	b := img.Bounds()
	rect := image.Rect(c.X, c.Y, c.X+c.Width, c.Y+c.Height).Add(b.Min)
	if !rect.In(b) {
		return nil, fmt.Errorf("crop %v outside image bounds %v", rect, b)
	}
	dst := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst, nil
}

// channels is 1 for grayscale, 3 for opaque colour and 4 otherwise.
func channels(img image.Image) int {
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		return 1
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return 3
	}
	return 4
}

// toTensor lays pixels out row-major in HWC order.
func toTensor(img image.Image) Tensor {
	b := img.Bounds()
	h, w, c := b.Dy(), b.Dx(), channels(img)
	data := make([]byte, 0, h*w*c)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			px := img.At(x, y)
			if c == 1 {
				data = append(data, color.GrayModel.Convert(px).(color.Gray).Y)
				continue
			}
			n := color.NRGBAModel.Convert(px).(color.NRGBA)
			data = append(data, n.R, n.G, n.B)
			if c == 4 {
				data = append(data, n.A)
			}
		}
	}
	return Tensor{Shape: []int{h, w, c}, Data: data}
}
