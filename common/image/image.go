package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Laisky/errors/v2"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/one-chat/one-chat/common/client"
	"github.com/one-chat/one-chat/common/config"
)

// ErrInvalidImage is returned when the payload cannot be decoded as one of the accepted formats.
var ErrInvalidImage = errors.New("invalid image file")

var allowedExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {},
}

var dataURLPattern = regexp.MustCompile(`^data:image/([^;]+);base64,(.*)$`)

// AllowedExtension reports whether filename carries an accepted image extension.
func AllowedExtension(filename string) bool {
	_, ok := allowedExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Normalize decodes data, flattens transparency onto white, shrinks it so the
// longest side is at most maxDim and re-encodes it as JPEG.
func Normalize(data []byte, maxDim, quality int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidImage, err.Error())
	}

	b := src.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), maxDim)
	if w == 0 || h == 0 {
		return nil, ErrInvalidImage
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	}

	var out bytes.Buffer
	if err = jpeg.Encode(&out, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.Wrap(err, "encode jpeg")
	}
	return out.Bytes(), nil
}

// EncodeJPEGBase64 normalizes data with the configured bounds and returns the base64 JPEG.
func EncodeJPEGBase64(data []byte) (string, error) {
	normalized, err := Normalize(data, config.MaxImageDimension, config.ImageJPEGQuality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(normalized), nil
}

// JPEGDataURL wraps base64 JPEG data into a data URI.
func JPEGDataURL(b64 string) string {
	return "data:image/jpeg;base64," + b64
}

// ParseDataURL splits a data URI into its mime type and base64 payload.
func ParseDataURL(url string) (mimeType, data string, ok bool) {
	m := dataURLPattern.FindStringSubmatch(url)
	if len(m) != 3 {
		return "", "", false
	}
	return "image/" + m[1], m[2], true
}

// Fetch downloads an image produced by the upstream, bounded by the upload size limit.
func Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "build image request for %s", url)
	}
	resp, err := client.UserContentRequestHTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch image %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetch image %s: status code %d", url, resp.StatusCode)
	}

	maxSize := config.MaxUploadBytes() * 4
	if resp.ContentLength > maxSize {
		return nil, errors.Errorf("image %s too large: %d bytes", url, resp.ContentLength)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "read image body")
	}
	if int64(len(data)) > maxSize {
		return nil, errors.Errorf("image %s too large", url)
	}
	return data, nil
}

func fitWithin(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}
