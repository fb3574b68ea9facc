package feedgen

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/hitoshi/skygate/internal/model"
)

// ErrInvalidCursor はカーソルが不正であることを示す。
var ErrInvalidCursor = errors.New("invalid cursor")

// cursorPayload はカーソルのCBOR表現。キーは整数で固定する。
type cursorPayload struct {
	IndexedAt int64  `cbor:"1,keyasint"`
	URI       string `cbor:"2,keyasint"`
}

var (
	cursorEncMode cbor.EncMode
	cursorDecMode cbor.DecMode
)

func init() {
	var err error

	// 同じ位置は常に同じカーソル文字列になる
	cursorEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("feedgen: CBOR encoder initialization failed: " + err.Error())
	}

	cursorDecMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic("feedgen: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeCursor はフィード上の位置を不透明なカーソル文字列に符号化する。
// 時刻はマイクロ秒精度で保持する。
func EncodeCursor(pos model.FeedPosition) (string, error) {
	b, err := cursorEncMode.Marshal(cursorPayload{
		IndexedAt: pos.IndexedAt.UnixMicro(),
		URI:       pos.URI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor はカーソル文字列をフィード上の位置に復号する。
// 復号できない、時刻が正でない、URIがat://で始まらない場合はErrInvalidCursorを返す。
func DecodeCursor(s string) (model.FeedPosition, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return model.FeedPosition{}, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}

	var p cursorPayload
	if err := cursorDecMode.Unmarshal(b, &p); err != nil {
		return model.FeedPosition{}, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}

	if p.IndexedAt <= 0 || !strings.HasPrefix(p.URI, "at://") {
		return model.FeedPosition{}, ErrInvalidCursor
	}

	return model.FeedPosition{
		IndexedAt: time.UnixMicro(p.IndexedAt).UTC(),
		URI:       p.URI,
	}, nil
}
