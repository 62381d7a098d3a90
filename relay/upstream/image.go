package upstream

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/tidwall/gjson"

	"github.com/one-chat/one-chat/common/image"
	"github.com/one-chat/one-chat/monitor"
)

const imageSize = "1024x1024"

// ImageRequest is posted to /images/generations and /images/edits.
type ImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Image          string `json:"image,omitempty"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// ImageResult is a generated image. Data is nil when the upstream returned a
// URL that could not be downloaded; the URL is still usable by the browser.
type ImageResult struct {
	Data []byte
	URL  string
}

// GenerateImage asks the upstream for one image and downloads it.
func (c *Client) GenerateImage(ctx context.Context, modelName, prompt string) (*ImageResult, error) {
	lg := gmw.GetLogger(ctx).With(zap.String("model", modelName))

	url, err := c.imageCall(ctx, "/images/generations", ImageRequest{
		Model:          modelName,
		Prompt:         prompt,
		N:              1,
		Size:           imageSize,
		ResponseFormat: "url",
	})
	if err != nil {
		return nil, errors.Wrap(err, "generate image")
	}

	data, err := image.Fetch(ctx, url)
	if err != nil {
		lg.Warn("failed to download generated image", zap.String("url", url), zap.Error(err))
		return &ImageResult{URL: url}, nil
	}
	return &ImageResult{Data: data, URL: url}, nil
}

// EditImage normalizes src, sends it with the prompt and returns the edited image bytes.
func (c *Client) EditImage(ctx context.Context, modelName string, src []byte, prompt string) ([]byte, error) {
	b64, err := image.EncodeJPEGBase64(src)
	if err != nil {
		return nil, errors.Wrap(err, "encode source image")
	}

	url, err := c.imageCall(ctx, "/images/edits", ImageRequest{
		Model:  modelName,
		Prompt: prompt,
		Image:  image.JPEGDataURL(b64),
		N:      1,
		Size:   imageSize,
	})
	if err != nil {
		return nil, errors.Wrap(err, "edit image")
	}

	data, err := image.Fetch(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "download edited image")
	}
	return data, nil
}

// imageCall posts req and returns data[0].url from the response.
func (c *Client) imageCall(ctx context.Context, path string, req ImageRequest) (string, error) {
	start := time.Now()
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.ImageTimeout)
	defer cancel()

	resp, err := c.postJSON(reqCtx, path, req)
	if err != nil {
		monitor.RecordUpstream(req.Model, "error", time.Since(start))
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		monitor.RecordUpstream(req.Model, "error", time.Since(start))
		return "", errors.Wrap(err, "read image response")
	}
	if resp.StatusCode != http.StatusOK {
		monitor.RecordUpstream(req.Model, "error", time.Since(start))
		return "", errors.Errorf("upstream status %d: %s", resp.StatusCode, truncate(string(body), 512))
	}

	url := gjson.GetBytes(body, "data.0.url").String()
	if url == "" {
		monitor.RecordUpstream(req.Model, "error", time.Since(start))
		return "", errors.Errorf("no image data in response from %s", req.Model)
	}

	monitor.RecordUpstream(req.Model, "ok", time.Since(start))
	return url, nil
}
