package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"pacotes-bot/internal/packages"
)

const (
	DefaultDedupWindow = 24 * time.Hour
	sendTimeout        = 10 * time.Second
)

// Sender is the part of *telego.Bot the notifier needs.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Deduper reports whether an alert key is new within ttl, claiming it if so.
type Deduper interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisDeduper claims alert keys with SET NX so several instances share them.
type RedisDeduper struct {
	Redis *redis.Client
}

func (d RedisDeduper) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return d.Redis.SetNX(ctx, key, "1", ttl).Result()
}

// MemoryDeduper is used when Redis is not configured.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, until := range d.seen {
		if !now.Before(until) {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[key]; ok {
		return false, nil
	}
	d.seen[key] = now.Add(ttl)
	return true, nil
}

// Notifier sends operator alerts to a Telegram chat: failed renewals and
// packages that expired before all their renewals went through.
type Notifier struct {
	sender Sender
	chatID int64
	dedup  Deduper
	window time.Duration
}

func NewNotifier(sender Sender, chatID int64, dedup Deduper, window time.Duration) *Notifier {
	if dedup == nil {
		dedup = NewMemoryDeduper()
	}
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Notifier{sender: sender, chatID: chatID, dedup: dedup, window: window}
}

func (n *Notifier) PackageCreated(packages.Subscription) {}

func (n *Notifier) PackageRenewed(packages.Subscription, packages.HistoryEntry) {}

func (n *Notifier) PackageCancelled(packages.Subscription) {}

func (n *Notifier) RenewalFailed(sub packages.Subscription, err error) {
	ref := sub.NextDerivedReference()
	n.alert("alert:renewal_failed:"+sub.ID+":"+ref, RenewalFailedText(sub, ref, err))
}

func (n *Notifier) PackageExpired(sub packages.Subscription) {
	if sub.Depleted() {
		return
	}
	n.alert("alert:expired_pending:"+sub.ID, ExpiredPendingText(sub))
}

func (n *Notifier) alert(key, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	fresh, err := n.dedup.Claim(ctx, key, n.window)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Alert de-duplication unavailable, sending anyway")
	} else if !fresh {
		log.Debug().Str("key", key).Msg("Alert already sent recently")
		return
	}

	if _, err := n.sender.SendMessage(ctx, tu.Message(tu.ID(n.chatID), text)); err != nil {
		log.Error().Err(err).Int64("chat_id", n.chatID).Str("key", key).Msg("Failed to send operator alert")
	}
}

func RenewalFailedText(sub packages.Subscription, reference string, err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ Falha na renovação %s\n", reference)
	fmt.Fprintf(&b, "Número: %s\n", sub.Phone)
	if sub.GroupID != "" {
		fmt.Fprintf(&b, "Grupo: %s\n", sub.GroupID)
	}
	fmt.Fprintf(&b, "Dias restantes: %d de %d\n", sub.DaysRemaining, sub.PlanDays)
	fmt.Fprintf(&b, "Erro: %v\n", err)
	b.WriteString("Nova tentativa no próximo ciclo.")
	return b.String()
}

func ExpiredPendingText(sub packages.Subscription) string {
	return fmt.Sprintf("❌ Pacote %s (%s) expirou com %d renovação(ões) por fazer.",
		sub.Reference, sub.Phone, sub.DaysRemaining)
}
