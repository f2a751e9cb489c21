package trace

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// DecodeDrawingData decodes an extractor drawing payload from its wire
// formats:
// - Raw JSON (small payloads, testing)
// - Zlib-compressed JSON (large sheets over MQTT)
// Coordinates are normalized to page points before returning.
func DecodeDrawingData(data []byte) (*DrawingDocument, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	var jsonBytes []byte
	var err error

	if data[0] == '{' {
		jsonBytes = data
	} else {
		jsonBytes, err = inflateZlib(data)
		if err != nil {
			return nil, fmt.Errorf("unknown format: not JSON or zlib-compressed")
		}
	}

	if len(jsonBytes) == 0 {
		return nil, fmt.Errorf("decoded JSON payload is empty")
	}

	doc, err := ParseDrawingJSON(jsonBytes)
	if err != nil {
		return nil, err
	}
	NormalizeToPoints(doc)
	return doc, nil
}

// DecodeDrawingFile reads and decodes a drawing payload file
func DecodeDrawingFile(path string) (*DrawingDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return DecodeDrawingData(data)
}

// EncodeDrawingData marshals a document back to a wire payload, optionally
// zlib-compressed the way the extractor ships large sheets
func EncodeDrawingData(doc *DrawingDocument, compress bool) ([]byte, error) {
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling drawing: %w", err)
	}
	if !compress {
		return jsonBytes, nil
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(jsonBytes); err != nil {
		return nil, fmt.Errorf("compressing drawing: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing zlib writer: %w", err)
	}
	return buf.Bytes(), nil
}

// inflateZlib decompresses zlib-compressed data
func inflateZlib(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating zlib reader: %w", err)
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			// Payload already read in full.
			_ = closeErr
		}
	}()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompressing zlib data: %w", err)
	}

	return decompressed, nil
}
