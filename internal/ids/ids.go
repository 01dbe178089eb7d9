package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Токены раздаются клиентам без аутентификации, поэтому энтропия
// криптографическая. Monotonic-ридер не потокобезопасен, отсюда мьютекс.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewToken возвращает лексикографически сортируемый токен для ссылок
// согласований и порталов клиентов. ULID безопасен для URL и не содержит
// символов, требующих экранирования.
func NewToken() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// IsToken проверяет, похожа ли строка на валидный токен.
func IsToken(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
