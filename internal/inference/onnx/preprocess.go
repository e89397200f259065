package onnx

import (
	"image"

	"github.com/disintegration/imaging"
)

// fillCHW resizes img to w x h and writes it into dst as planar RGB floats,
// applying (v/255 - mean[c]) / std[c] per channel.
func fillCHW(dst []float32, img image.Image, w, h int, mean, std [3]float32) {
	resized := imaging.Resize(img, w, h, imaging.Linear)
	channelSize := w * h

	for y := 0; y < h; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < w; x++ {
			i := y*w + x
			p := row[x*4:]
			dst[i] = (float32(p[0])/255.0 - mean[0]) / std[0]
			dst[channelSize+i] = (float32(p[1])/255.0 - mean[1]) / std[1]
			dst[channelSize*2+i] = (float32(p[2])/255.0 - mean[2]) / std[2]
		}
	}
}
