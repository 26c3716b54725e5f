package video

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
)

const DefaultQuality = 80

// JPEGCodec converts between packed YUYV (4:2:2) and baseline JPEG.
type JPEGCodec struct {
	Quality int
}

func checkYUYV(yuyv []byte, size Size) error {
	if size.Width == 0 || size.Height == 0 || size.Width%2 != 0 {
		return fmt.Errorf("video: bad yuyv geometry %s", size)
	}
	if len(yuyv) < size.YUYVLen() {
		return fmt.Errorf("video: yuyv frame %s needs %d bytes, got %d", size, size.YUYVLen(), len(yuyv))
	}
	return nil
}

func (c JPEGCodec) EncodeYUYV(dst, yuyv []byte, size Size) ([]byte, error) {
	if err := checkYUYV(yuyv, size); err != nil {
		return dst, err
	}

	w, h := int(size.Width), int(size.Height)
	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio422)
	for y := 0; y < h; y++ {
		row := yuyv[y*w*2 : (y+1)*w*2]
		for x := 0; x < w; x += 2 {
			i := x * 2
			img.Y[y*img.YStride+x] = row[i]
			img.Y[y*img.YStride+x+1] = row[i+2]
			img.Cb[y*img.CStride+x/2] = row[i+1]
			img.Cr[y*img.CStride+x/2] = row[i+3]
		}
	}

	quality := c.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	buf := bytes.NewBuffer(dst)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return dst, err
	}
	return buf.Bytes(), nil
}

// DecodeJPEG drops the last column of odd width images so the result packs into YUYV.
func (c JPEGCodec) DecodeJPEG(dst, data []byte) ([]byte, Size, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return dst, Size{}, err
	}

	b := img.Bounds()
	w, h := b.Dx()&^1, b.Dy()
	if w == 0 || h == 0 {
		return dst, Size{}, fmt.Errorf("video: jpeg too small %dx%d", b.Dx(), b.Dy())
	}

	ycc, native := img.(*image.YCbCr)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x += 2 {
			var y0, y1, cb, cr uint8
			if native {
				px, py := b.Min.X+x, b.Min.Y+y
				y0 = ycc.Y[ycc.YOffset(px, py)]
				y1 = ycc.Y[ycc.YOffset(px+1, py)]
				ci := ycc.COffset(px, py)
				cb, cr = ycc.Cb[ci], ycc.Cr[ci]
			} else {
				p0 := color.YCbCrModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.YCbCr)
				p1 := color.YCbCrModel.Convert(img.At(b.Min.X+x+1, b.Min.Y+y)).(color.YCbCr)
				y0, y1, cb, cr = p0.Y, p1.Y, p0.Cb, p0.Cr
			}
			dst = append(dst, y0, cb, y1, cr)
		}
	}
	return dst, Size{Width: uint32(w), Height: uint32(h)}, nil
}
