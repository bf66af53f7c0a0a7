package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog/log"

	"pacotes-bot/internal/packages"
)

const dateLayout = "02/01 15:04"

// PackageService is what the console reads and changes.
type PackageService interface {
	ListActive(groupID string) []packages.Subscription
	Stats() packages.Stats
	Validity(phone string) []packages.Validity
	Cancel(phone, reference string) (packages.Subscription, error)
}

// Bot is the operator console. Only messages from the admin chat are answered.
type Bot struct {
	Instance    *telego.Bot
	Packages    PackageService
	AdminChatID int64

	handler *th.BotHandler
	cancel  context.CancelFunc
}

func NewBot(token string, svc PackageService, adminChatID int64) (*Bot, error) {
	tgBot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		Instance:    tgBot,
		Packages:    svc,
		AdminChatID: adminChatID,
	}, nil
}

// Start polls for updates and blocks until Stop is called.
func (b *Bot) Start(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)

	updates, err := b.Instance.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.Instance, updates)
	if err != nil {
		return fmt.Errorf("failed to create bot handler: %w", err)
	}
	b.handler = handler

	for _, command := range []string{"ativos", "stats", "validade", "cancelar", "ajuda", "start"} {
		handler.Handle(b.handle, th.CommandEqual(command))
	}

	log.Info().Int64("admin_chat_id", b.AdminChatID).Msg("Operator console started")
	handler.Start()
	return nil
}

func (b *Bot) Stop() {
	if b.handler != nil {
		b.handler.Stop()
	}
	if b.cancel != nil {
		b.cancel()
	}
}

func (b *Bot) handle(ctx *th.Context, update telego.Update) error {
	message := update.Message
	if message == nil {
		return nil
	}
	if message.Chat.ID != b.AdminChatID {
		log.Warn().Int64("chat_id", message.Chat.ID).Msg("Ignoring console command from unknown chat")
		return nil
	}

	command, args := parseCommand(message.Text)
	reply := b.Reply(command, args)

	if _, err := ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(message.Chat.ID), reply)); err != nil {
		log.Error().Err(err).Str("command", command).Msg("Failed to answer console command")
	}
	return nil
}

// parseCommand splits "/cmd@bot a b" into "cmd" and its arguments.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	command := strings.TrimPrefix(fields[0], "/")
	command, _, _ = strings.Cut(command, "@")
	return strings.ToLower(command), fields[1:]
}

// Reply answers one console command.
func (b *Bot) Reply(command string, args []string) string {
	switch command {
	case "ativos":
		group := ""
		if len(args) > 0 {
			group = args[0]
		}
		return FormatActive(b.Packages.ListActive(group), group)
	case "stats":
		return FormatStats(b.Packages.Stats())
	case "validade":
		if len(args) < 1 {
			return "Uso: /validade <número>"
		}
		return FormatValidity(args[0], b.Packages.Validity(args[0]))
	case "cancelar":
		if len(args) < 2 {
			return "Uso: /cancelar <número> <referência>"
		}
		sub, err := b.Packages.Cancel(args[0], args[1])
		if errors.Is(err, packages.ErrNotFound) {
			return fmt.Sprintf("Nenhum pacote ativo %s para %s.", args[1], args[0])
		}
		if err != nil {
			return "❌ Erro ao cancelar: " + err.Error()
		}
		return fmt.Sprintf("✅ Pacote %s (%s) cancelado com %d dia(s) por renovar.", sub.Reference, sub.Phone, sub.DaysRemaining)
	default:
		return helpText
	}
}

const helpText = "Comandos:\n" +
	"/ativos [grupo] - pacotes ativos\n" +
	"/stats - resumo\n" +
	"/validade <número> - validade dos pacotes de um número\n" +
	"/cancelar <número> <referência> - cancelar um pacote"

func FormatActive(subs []packages.Subscription, group string) string {
	if len(subs) == 0 {
		if group != "" {
			return fmt.Sprintf("Nenhum pacote ativo no grupo %s.", group)
		}
		return "Nenhum pacote ativo."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📦 %d pacote(s) ativo(s)\n", len(subs))
	for _, sub := range subs {
		fmt.Fprintf(&b, "\n%s • %s • %dd", sub.Reference, sub.Phone, sub.PlanDays)
		if sub.Depleted() {
			fmt.Fprintf(&b, " • esgotado, expira %s", sub.ExpiresAt.Format(dateLayout))
			continue
		}
		fmt.Fprintf(&b, " • faltam %d • próxima %s", sub.DaysRemaining, sub.NextRenewalAt.Format(dateLayout))
	}
	return b.String()
}

func FormatStats(st packages.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Ativos: %d (esgotados: %d)\n", st.Active, st.Depleted)
	fmt.Fprintf(&b, "Criados: %d • Renovados: %d • Expirados: %d • Cancelados: %d\n",
		st.Created, st.Renewed, st.Expired, st.Cancelled)
	fmt.Fprintf(&b, "Histórico: %d registo(s)", st.HistorySize)

	if len(st.ByPlan) > 0 {
		plans := make([]int, 0, len(st.ByPlan))
		for days := range st.ByPlan {
			plans = append(plans, days)
		}
		sort.Ints(plans)
		parts := make([]string, 0, len(plans))
		for _, days := range plans {
			parts = append(parts, fmt.Sprintf("%dd=%d", days, st.ByPlan[days]))
		}
		fmt.Fprintf(&b, "\nPlanos: %s", strings.Join(parts, ", "))
	}
	if st.NextRenewalAt != nil {
		fmt.Fprintf(&b, "\nPróxima renovação: %s", st.NextRenewalAt.Format(dateLayout))
	}
	return b.String()
}

func FormatValidity(phone string, validity []packages.Validity) string {
	if len(validity) == 0 {
		return fmt.Sprintf("Nenhum pacote ativo para %s.", phone)
	}

	var b strings.Builder
	for i, v := range validity {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "📱 %s (%d dias)\n", v.Reference, v.PlanDays)
		fmt.Fprintf(&b, "Renovações feitas: %d, por fazer: %d\n", v.RenewalCount, v.DaysRemaining)
		fmt.Fprintf(&b, "Expira: %s (%.0fh)", v.ExpiresAt.Format(dateLayout), v.HoursToExpiry)
		if v.DaysRemaining > 0 && !v.NextRenewalAt.IsZero() {
			fmt.Fprintf(&b, "\nPróxima renovação: %s", v.NextRenewalAt.Format(dateLayout))
		}
	}
	return b.String()
}
