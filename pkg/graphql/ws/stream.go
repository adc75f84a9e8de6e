package ws

import (
	"encoding/json"
	"log"

	"github.com/gorilla/websocket"
)

func writeFrame(w MessageWriter, op *OperationMessage, logger *log.Logger) error {
	bytes, err := json.Marshal(op)
	if err != nil {
		return err
	}

	if logger != nil {
		logger.Printf("[WRITE] %s", bytes)
	}

	return w.WriteMessage(websocket.TextMessage, bytes)
}

// frameReader hands out decoded frames, swallowing keep-alives.
type frameReader struct {
	r          MessageReader
	keepAlives map[MessageType]bool
	logger     *log.Logger
}

func newFrameReader(r MessageReader, keepAlives []MessageType, logger *log.Logger) *frameReader {
	set := make(map[MessageType]bool, len(keepAlives))
	for _, typ := range keepAlives {
		set[typ] = true
	}

	return &frameReader{r: r, keepAlives: set, logger: logger}
}

func (f *frameReader) Read() (*OperationMessage, error) {
	for {
		_, data, err := f.r.ReadMessage()
		if err != nil {
			return nil, err
		}

		if f.logger != nil {
			f.logger.Printf("[READ] %s", data)
		}

		var op OperationMessage
		if err := json.Unmarshal(data, &op); err != nil {
			return nil, &DecodeError{Text: string(data), Err: err}
		}

		if !f.keepAlives[op.Type] {
			return &op, nil
		}
	}
}
