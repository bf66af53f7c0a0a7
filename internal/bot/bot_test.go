package bot

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pacotes-bot/internal/packages"
)

type serviceStub struct {
	active    []packages.Subscription
	group     string
	validity  []packages.Validity
	cancelErr error
	cancelled []string
}

func (s *serviceStub) ListActive(groupID string) []packages.Subscription {
	s.group = groupID
	return s.active
}

func (s *serviceStub) Stats() packages.Stats {
	next := time.Date(2026, 5, 2, 10, 30, 0, 0, time.UTC)
	return packages.Stats{
		Active:        3,
		Depleted:      1,
		ByPlan:        map[int]int{30: 1, 5: 2},
		Created:       7,
		Renewed:       12,
		NextRenewalAt: &next,
	}
}

func (s *serviceStub) Validity(phone string) []packages.Validity {
	return s.validity
}

func (s *serviceStub) Cancel(phone, reference string) (packages.Subscription, error) {
	s.cancelled = append(s.cancelled, phone+"/"+reference)
	if s.cancelErr != nil {
		return packages.Subscription{}, s.cancelErr
	}
	return packages.Subscription{Reference: reference, Phone: phone, DaysRemaining: 2}, nil
}

func TestParseCommand(t *testing.T) {
	cmd, args := parseCommand("/Cancelar@pacotes_bot 841234567  REF1")
	assert.Equal(t, "cancelar", cmd)
	assert.Equal(t, []string{"841234567", "REF1"}, args)

	cmd, args = parseCommand("   ")
	assert.Equal(t, "", cmd)
	assert.Empty(t, args)
}

func TestReply_Active(t *testing.T) {
	svc := &serviceStub{active: []packages.Subscription{
		{Reference: "A1", Phone: "258841111111", PlanDays: 5, DaysRemaining: 3,
			NextRenewalAt: time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)},
		{Reference: "B2", Phone: "258842222222", PlanDays: 3, DaysRemaining: 0,
			ExpiresAt: time.Date(2026, 5, 3, 8, 0, 0, 0, time.UTC)},
	}}
	b := &Bot{Packages: svc}

	reply := b.Reply("ativos", []string{"vip"})

	assert.Equal(t, "vip", svc.group)
	assert.Contains(t, reply, "2 pacote(s)")
	assert.Contains(t, reply, "A1 • 258841111111 • 5d • faltam 3 • próxima 02/05 08:00")
	assert.Contains(t, reply, "B2 • 258842222222 • 3d • esgotado, expira 03/05 08:00")
}

func TestReply_ActiveEmpty(t *testing.T) {
	b := &Bot{Packages: &serviceStub{}}

	assert.Equal(t, "Nenhum pacote ativo.", b.Reply("ativos", nil))
	assert.Equal(t, "Nenhum pacote ativo no grupo g1.", b.Reply("ativos", []string{"g1"}))
}

func TestReply_Stats(t *testing.T) {
	b := &Bot{Packages: &serviceStub{}}

	reply := b.Reply("stats", nil)

	assert.Contains(t, reply, "Ativos: 3 (esgotados: 1)")
	assert.Contains(t, reply, "Planos: 5d=2, 30d=1")
	assert.Contains(t, reply, "Próxima renovação: 02/05 10:30")
}

func TestReply_Validity(t *testing.T) {
	svc := &serviceStub{validity: []packages.Validity{{
		Reference:     "A1",
		PlanDays:      5,
		RenewalCount:  1,
		DaysRemaining: 3,
		ExpiresAt:     time.Date(2026, 5, 5, 8, 0, 0, 0, time.UTC),
		NextRenewalAt: time.Date(2026, 5, 2, 6, 0, 0, 0, time.UTC),
		HoursToExpiry: 70.4,
	}}}
	b := &Bot{Packages: svc}

	reply := b.Reply("validade", []string{"841111111"})

	assert.Contains(t, reply, "A1 (5 dias)")
	assert.Contains(t, reply, "Renovações feitas: 1, por fazer: 3")
	assert.Contains(t, reply, "Expira: 05/05 08:00 (70h)")
	assert.Contains(t, reply, "Próxima renovação: 02/05 06:00")

	assert.Equal(t, "Uso: /validade <número>", b.Reply("validade", nil))
	assert.Equal(t, "Nenhum pacote ativo para 840000000.", (&Bot{Packages: &serviceStub{}}).Reply("validade", []string{"840000000"}))
}

func TestReply_Cancel(t *testing.T) {
	svc := &serviceStub{}
	b := &Bot{Packages: svc}

	assert.Contains(t, b.Reply("cancelar", []string{"841111111", "A1"}), "Pacote A1 (841111111) cancelado com 2 dia(s)")
	assert.Equal(t, []string{"841111111/A1"}, svc.cancelled)

	svc.cancelErr = fmt.Errorf("%w: x", packages.ErrNotFound)
	assert.Equal(t, "Nenhum pacote ativo A1 para 841111111.", b.Reply("cancelar", []string{"841111111", "A1"}))

	assert.Equal(t, "Uso: /cancelar <número> <referência>", b.Reply("cancelar", []string{"841111111"}))
}

func TestReply_UnknownShowsHelp(t *testing.T) {
	b := &Bot{Packages: &serviceStub{}}

	assert.Equal(t, helpText, b.Reply("start", nil))
}
