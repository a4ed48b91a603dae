package gateway

import (
	"sync"

	"github.com/hitoshi/storefront/internal/model"
)

// subscriber は1購読者分のイベントキュー。
// 送信側をブロックしないよう無制限キューに積み、専用goroutineが順番に配送する。
type subscriber struct {
	mu     sync.Mutex
	queue  []model.AuthEvent
	signal chan struct{}
	out    chan model.AuthEvent
	done   chan struct{}
	once   sync.Once
}

func newSubscriber() *subscriber {
	s := &subscriber{
		signal: make(chan struct{}, 1),
		out:    make(chan model.AuthEvent),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) push(ev model.AuthEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}

// broadcaster は認証状態変化イベントを全購読者に発行順で配送する。
type broadcaster struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]*subscriber)}
}

// subscribe は購読を登録し、受信チャネルと解除関数を返す。
// 解除するとチャネルはクローズされる。
func (b *broadcaster) subscribe() (<-chan model.AuthEvent, func()) {
	s := newSubscriber()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.stop()
		return s.out, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.mu.Unlock()

	return s.out, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		s.stop()
	}
}

// publish はイベントを全購読者のキューに積む。呼び出し元はブロックしない。
func (b *broadcaster) publish(ev model.AuthEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.push(ev)
	}
}

// close は全購読を解除し、以後の購読は即座にクローズ済みチャネルを返す。
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, s := range b.subs {
		s.stop()
		delete(b.subs, id)
	}
}
