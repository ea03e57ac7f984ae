package telegram

import (
	"context"

	"sapex/backend/internal/supporthub"
)

// watch replaces any relay of chatID with one for helperID.
func (s *BotService) watch(ctx context.Context, chatID int64, helperID, lang string) error {
	notifier, err := supporthub.NewMatchNotifier(ctx, s.Storage, helperID)
	if err != nil {
		return err
	}
	r := &relay{helperID: helperID, lang: lang, notifier: notifier, done: make(chan struct{})}

	s.mu.Lock()
	prev := s.relays[chatID]
	s.relays[chatID] = r
	s.mu.Unlock()
	if prev != nil {
		prev.stop()
	}

	go func() {
		defer close(r.done)
		for alert := range notifier.Alerts() {
			s.sendAlert(chatID, r.lang, alert)
		}
	}()
	return nil
}

func (s *BotService) detach(chatID int64) *relay {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.relays[chatID]
	delete(s.relays, chatID)
	return r
}

// stop closes the notifier and waits for the forwarder to drain.
func (r *relay) stop() {
	r.notifier.Close()
	<-r.done
}
