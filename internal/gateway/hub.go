package gateway

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// dedupeWindow suprime reentregas do mesmo evento em sequência rápida,
// comportamento observado nos feeds de mudança dos backends gerenciados.
const dedupeWindow = 100 * time.Millisecond

// hub distribui eventos de mudança para as assinaturas ativas.
// Compartilhado pelas implementações em memória e Postgres.
type hub struct {
	mu       sync.Mutex
	nextID   int
	subs     map[int]*subscriber
	lastSeen map[string]time.Time
	window   time.Duration
	now      func() time.Time
}

type subscriber struct {
	filter Filter
	fn     OnEvent
}

func newHub(window time.Duration) *hub {
	return &hub{
		subs:     make(map[int]*subscriber),
		lastSeen: make(map[string]time.Time),
		window:   window,
		now:      time.Now,
	}
}

// subscribe registra um callback; o retorno cancela exatamente uma vez
func (h *hub) subscribe(f Filter, fn OnEvent) Unsubscribe {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	h.subs[id] = &subscriber{filter: f, fn: fn}

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
		})
	}
}

// publish entrega o evento a cada assinatura cujo filtro casa.
// Eventos idênticos dentro da janela são descartados.
func (h *hub) publish(ev Event) {
	if ev.Submission == nil {
		return
	}

	key := fmt.Sprintf("%s:%s:%s", ev.Kind, ev.Submission.ID, ev.Submission.Status)

	h.mu.Lock()
	now := h.now()
	if last, ok := h.lastSeen[key]; ok && now.Sub(last) < h.window {
		h.mu.Unlock()
		return
	}
	h.lastSeen[key] = now
	h.pruneLocked(now)

	// Copia a lista para entregar fora do lock: um callback pode cancelar
	// a própria assinatura sem travar o hub
	targets := make([]OnEvent, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.filter.matches(ev.Submission) {
			targets = append(targets, sub.fn)
		}
	}
	h.mu.Unlock()

	for _, fn := range targets {
		deliver(fn, ev)
	}
}

// deliver isola o hub de pânicos dentro de um callback
func deliver(fn OnEvent, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Pânico em callback de assinatura: %v", r)
		}
	}()
	fn(ev)
}

// pruneLocked descarta entradas de dedupe já fora da janela
func (h *hub) pruneLocked(now time.Time) {
	if len(h.lastSeen) < 1024 {
		return
	}
	for key, seen := range h.lastSeen {
		if now.Sub(seen) >= h.window {
			delete(h.lastSeen, key)
		}
	}
}
