package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/Laisky/errors/v2"
)

type docxBody struct {
	paragraphs []string
	tables     [][][]string // table -> row -> cell
}

func extractDOCX(data []byte, maxChars int) (*boundedText, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Errorf("Failed to process Word document: %s", err.Error())
	}

	var part *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			part = f
			break
		}
	}
	if part == nil {
		return nil, errors.New("Failed to process Word document: word/document.xml not found")
	}

	rc, err := part.Open()
	if err != nil {
		return nil, errors.Errorf("Failed to process Word document: %s", err.Error())
	}
	defer rc.Close()

	body, err := parseDocxBody(rc)
	if err != nil {
		return nil, errors.Errorf("Failed to process Word document: %s", err.Error())
	}

	text := newBoundedText(maxChars)
	for _, p := range body.paragraphs {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if !text.write(p + "\n") {
			break
		}
	}

tables:
	for _, table := range body.tables {
		if text.full() || !text.write("\n--- Table ---\n") {
			break
		}
		for _, row := range table {
			var cells []string
			for _, cell := range row {
				if c := strings.TrimSpace(cell); c != "" {
					cells = append(cells, c)
				}
			}
			if len(cells) == 0 {
				continue
			}
			if !text.write(strings.Join(cells, " | ") + "\n") {
				break tables
			}
		}
	}

	if text.blank() {
		return nil, errors.New("No readable text found in Word document.")
	}
	return text, nil
}

// parseDocxBody streams WordprocessingML and collects top-level paragraphs
// and table cells. Text inside nested tables is folded into the outer cell.
func parseDocxBody(r io.Reader) (*docxBody, error) {
	var (
		body     docxBody
		para     strings.Builder
		row      []string
		cell     []string
		inPara   bool
		inRun    bool
		inText   bool
		tblDepth int
	)

	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return &body, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "decode document.xml")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tblDepth++
				if tblDepth == 1 {
					body.tables = append(body.tables, nil)
				}
			case "tr":
				if tblDepth == 1 {
					row = nil
				}
			case "tc":
				if tblDepth == 1 {
					cell = nil
				}
			case "p":
				inPara = true
				para.Reset()
			case "r":
				inRun = true
			case "t":
				inText = true
			case "tab":
				if inRun {
					para.WriteByte('\t')
				}
			case "br", "cr":
				if inRun {
					para.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "r":
				inRun = false
			case "p":
				inPara = false
				if tblDepth == 0 {
					body.paragraphs = append(body.paragraphs, para.String())
				} else {
					cell = append(cell, para.String())
				}
			case "tc":
				if tblDepth == 1 {
					row = append(row, strings.Join(cell, "\n"))
				}
			case "tr":
				if tblDepth == 1 {
					last := len(body.tables) - 1
					body.tables[last] = append(body.tables[last], row)
				}
			case "tbl":
				tblDepth--
			}
		case xml.CharData:
			if inPara && inText {
				para.Write(t)
			}
		}
	}
}
