package document

import (
	"bytes"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/ledongthuc/pdf"

	"github.com/one-chat/one-chat/common/logger"
)

func extractPDF(data []byte, maxChars, maxPages int) (text *boundedText, err error) {
	// the pdf reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			text, err = nil, errors.Errorf("Failed to process PDF file: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Errorf("Failed to process PDF file: %s", err.Error())
	}

	pages := reader.NumPage()
	if pages == 0 {
		return nil, errors.New("PDF file appears to be empty or corrupted")
	}

	text = newBoundedText(maxChars)
	for i := 1; i <= min(pages, maxPages); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, perr := page.GetPlainText(nil)
		if perr != nil {
			logger.Logger.Warn("failed to extract pdf page", zap.Int("page", i), zap.Error(perr))
			continue
		}
		if pageText == "" {
			continue
		}
		if !text.write(pageHeader(i)) || !text.write(pageText) {
			break
		}
	}

	if text.blank() {
		return nil, errors.New("No readable text found in PDF. The PDF might contain only images or be password-protected.")
	}
	return text, nil
}
