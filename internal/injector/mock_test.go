package injector

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf16"
)

type postedMessage struct {
	target Target
	unit   uint16
	key    Key
	down   bool
	isKey  bool
}

// MockPoster records posted messages. failEvery makes every n-th character
// post fail; onChar runs after each character post.
type MockPoster struct {
	mu        sync.Mutex
	messages  []postedMessage
	chars     int
	failEvery int
	failKeys  bool
	onChar    func(n int)
}

func (m *MockPoster) PostChar(target Target, unit uint16) error {
	m.mu.Lock()
	m.chars++
	n := m.chars
	fail := m.failEvery > 0 && n%m.failEvery == 0
	if !fail {
		m.messages = append(m.messages, postedMessage{target: target, unit: unit})
	}
	hook := m.onChar
	m.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if fail {
		return ErrPostFailed
	}
	return nil
}

func (m *MockPoster) PostKey(target Target, key Key, down bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failKeys {
		return ErrPostFailed
	}
	m.messages = append(m.messages, postedMessage{target: target, key: key, down: down, isKey: true})
	return nil
}

func (m *MockPoster) Messages() []postedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]postedMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

// Typed reconstructs the text the target would have received.
func (m *MockPoster) Typed() string {
	var units []rune
	for _, msg := range m.Messages() {
		switch {
		case !msg.isKey:
			units = append(units, rune(msg.unit))
		case msg.down && msg.key == KeyReturn:
			units = append(units, '\n')
		case msg.down && msg.key == KeyTab:
			units = append(units, '\t')
		}
	}
	return decodeUnits(units)
}

func (m *MockPoster) KeyPresses(key Key) int {
	n := 0
	for _, msg := range m.Messages() {
		if msg.isKey && msg.down && msg.key == key {
			n++
		}
	}
	return n
}

func decodeUnits(units []rune) string {
	u16 := make([]uint16, len(units))
	for i, u := range units {
		u16[i] = uint16(u)
	}
	return string(utf16.Decode(u16))
}

func fixedResolver(target Target) FocusResolver {
	return ResolverFunc(func(context.Context) (Target, error) {
		return target, nil
	})
}

func failingResolver() FocusResolver {
	return ResolverFunc(func(context.Context) (Target, error) {
		return 0, errors.New("no foreground window")
	})
}

// fastTiming keeps the shape of the default profile at test speed.
func fastTiming() Timing {
	return Timing{
		BaseDelay:     200 * time.Microsecond,
		MinDelay:      100 * time.Microsecond,
		JitterMin:     -50 * time.Microsecond,
		JitterMax:     100 * time.Microsecond,
		KeySettle:     0,
		NewlineSettle: 100 * time.Microsecond,
		TabSettle:     100 * time.Microsecond,
		SettleDelay:   time.Millisecond,
		DecoyPause:    time.Millisecond,
		DecoyInterval: time.Millisecond,
		DecoyDuration: 10 * time.Millisecond,
		ProgressEvery: 50,
	}
}
