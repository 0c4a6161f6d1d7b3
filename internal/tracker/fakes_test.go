package tracker

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/vrsandeep/bom-preview/internal/poll"
)

// eventLog records channel lifecycle calls across fakes, in order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakePush struct {
	name string
	log  *eventLog

	mu     sync.Mutex
	cb     func(json.RawMessage)
	active bool
}

func (f *fakePush) Subscribe(topic string, onMessage func(json.RawMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = onMessage
	f.active = true
	f.log.add("subscribe:" + f.name + ":" + topic)
}

func (f *fakePush) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		f.log.add("unsubscribe:" + f.name)
	}
	f.active = false
}

func (f *fakePush) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// emit delivers raw even after Stop, to exercise late deliveries.
func (f *fakePush) emit(raw string) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb(json.RawMessage(raw))
	}
}

type fakePoll struct {
	name string
	log  *eventLog

	mu     sync.Mutex
	fetch  poll.FetchFunc
	cb     func([]byte)
	active bool
}

func (f *fakePoll) Start(fetch poll.FetchFunc, onStatus func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetch = fetch
	f.cb = onStatus
	f.active = true
	f.log.add("poll:" + f.name)
	return nil
}

func (f *fakePoll) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		f.log.add("unpoll:" + f.name)
	}
	f.active = false
}

func (f *fakePoll) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// tick runs one poll cycle, as the real adapter would on its timer.
func (f *fakePoll) tick() {
	f.mu.Lock()
	fetch, cb := f.fetch, f.cb
	f.mu.Unlock()
	if fetch == nil {
		return
	}
	body, err := fetch(context.Background())
	if err != nil {
		return
	}
	cb(body)
}

// statusSource hands out whatever body the test set last.
type statusSource struct {
	mu   sync.Mutex
	body string
	err  error
}

func (s *statusSource) set(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = body
}

func (s *statusSource) fetch(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []byte(s.body), s.err
}
