package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BeatBard/ccs-pops/internal/genai"
	"github.com/BeatBard/ccs-pops/internal/intent"
	"github.com/BeatBard/ccs-pops/internal/models"
	"github.com/BeatBard/ccs-pops/internal/session"
	"github.com/BeatBard/ccs-pops/internal/store"
)

const testPhone = "+94771234567"

func newTestDriver(p *testProvider, ai genai.ClientInterface) (*Driver, *session.Manager) {
	st := store.NewInMemoryStore()
	sessions := session.NewManager(st)
	handlers, _ := newTestHandlers(p, ai)
	classifier := intent.NewClassifier(ai)
	d := NewDriver(classifier, handlers, sessions, "Nuwan Perera")
	d.now = func() time.Time { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) }
	return d, sessions
}

func seedSession(t *testing.T, sessions *session.Manager, state models.State, plan []models.DailyPlanEntry) {
	t.Helper()
	sess, err := sessions.GetOrCreate(testPhone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sess.DSRName = "Nuwan Perera"
	sess.TargetDate = "2024-03-15"
	sess.CurrentState = state
	sess.PlanSnapshot = plan
	if err := sessions.Save(sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTurnGreeting(t *testing.T) {
	d, _ := newTestDriver(&testProvider{}, nil)
	msgs := d.ProcessTurn(context.Background(), testPhone, "hi", "")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Body, "Nuwan Perera") {
		t.Errorf("expected greeting naming the DSR, got %q", msgs[0].Body)
	}
	if len(msgs[0].Buttons) != 3 {
		t.Fatalf("expected 3 buttons, got %d", len(msgs[0].Buttons))
	}
	want := []models.ButtonAction{models.ButtonCheckin, models.ButtonOutletDetails, models.ButtonEndSummary}
	for i, b := range msgs[0].Buttons {
		if b.Action != want[i] {
			t.Errorf("button %d: expected %s, got %s", i, want[i], b.Action)
		}
	}
}

func TestTurnNumericSelection(t *testing.T) {
	p := &testProvider{plan: fiveOutletPlan(), outlets: testOutlets()}
	d, sessions := newTestDriver(p, nil)
	seedSession(t, sessions, models.StateOutletSelect, fiveOutletPlan())

	msgs := d.ProcessTurn(context.Background(), testPhone, "3", "")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages (stats, coaching), got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Body, "Food City Maharagama") {
		t.Errorf("expected stats for entry 3, got %q", msgs[0].Body)
	}
	if len(msgs[0].Buttons) != 0 {
		t.Error("expected buttons only on the last message")
	}
	if len(msgs[1].Buttons) == 0 {
		t.Error("expected buttons on the last message")
	}

	sess, err := sessions.Get(testPhone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.CurrentState != models.StateOutletDetails {
		t.Errorf("expected state %s, got %s", models.StateOutletDetails, sess.CurrentState)
	}
	if sess.PreviousState != models.StateOutletSelect {
		t.Errorf("expected previous state %s, got %s", models.StateOutletSelect, sess.PreviousState)
	}
	// The handler's delta lands in the persisted session.
	if sess.CurrentOutlet != "CMB003" {
		t.Errorf("expected current outlet CMB003, got %s", sess.CurrentOutlet)
	}
	if len(sess.OutletsVisited) != 1 || sess.OutletsVisited[0] != "CMB003" {
		t.Errorf("expected outlet recorded as visited, got %v", sess.OutletsVisited)
	}
}

func TestTurnOutOfRangeSelection(t *testing.T) {
	p := &testProvider{plan: fiveOutletPlan(), outlets: testOutlets()}
	d, sessions := newTestDriver(p, nil)
	seedSession(t, sessions, models.StateOutletSelect, fiveOutletPlan())

	msgs := d.ProcessTurn(context.Background(), testPhone, "7", "")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Body, "1 සිට 5 අතර") {
		t.Errorf("expected range correction naming 1..5, got %q", msgs[0].Body)
	}
	sess, err := sessions.Get(testPhone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.CurrentState != models.StateOutletSelect {
		t.Errorf("expected state to remain %s, got %s", models.StateOutletSelect, sess.CurrentState)
	}
}

func TestTurnUnknownFailsOpenToGreeting(t *testing.T) {
	// No AI classifier configured and no keywords in the text: the turn must
	// land on the greeting with the same button set as a plain "hi".
	d, _ := newTestDriver(&testProvider{}, nil)
	msgs := d.ProcessTurn(context.Background(), testPhone, "mokada dan karanne", "")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Body, "Pocket Coach") {
		t.Errorf("expected greeting body, got %q", msgs[0].Body)
	}
	want := []models.ButtonAction{models.ButtonCheckin, models.ButtonOutletDetails, models.ButtonEndSummary}
	if len(msgs[0].Buttons) != len(want) {
		t.Fatalf("expected %d buttons, got %d", len(want), len(msgs[0].Buttons))
	}
	for i, b := range msgs[0].Buttons {
		if b.Action != want[i] {
			t.Errorf("button %d: expected %s, got %s", i, want[i], b.Action)
		}
	}
}

func TestTurnButtonCodeBypassesState(t *testing.T) {
	p := &testProvider{plan: fiveOutletPlan(), outlets: testOutlets()}
	d, sessions := newTestDriver(p, nil)
	seedSession(t, sessions, models.StateGreeting, nil)

	msgs := d.ProcessTurn(context.Background(), testPhone, "OUTLET_DETAILS", "")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Body, "number එක type කරන්න") {
		t.Errorf("expected outlet selection prompt, got %q", msgs[0].Body)
	}
	sess, _ := sessions.Get(testPhone)
	if sess.CurrentState != models.StateOutletSelect {
		t.Errorf("expected state %s, got %s", models.StateOutletSelect, sess.CurrentState)
	}
}

func TestTurnRollsSessionToNewDay(t *testing.T) {
	// The plan exists only for today; a session left over from yesterday
	// must still see it.
	p := &testProvider{
		planByDate: map[string][]models.DailyPlanEntry{"2024-03-15": fiveOutletPlan()},
		outlets:    testOutlets(),
	}
	d, sessions := newTestDriver(p, nil)

	sess, err := sessions.GetOrCreate(testPhone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sess.DSRName = "Nuwan Perera"
	sess.TargetDate = "2024-03-14"
	sess.CurrentState = models.StateGreeting
	sess.PlanSnapshot = []models.DailyPlanEntry{{OutletID: "OLD001", OutletName: "Stale Outlet"}}
	sess.OutletsVisited = []string{"OLD001"}
	sess.CurrentOutlet = "OLD001"
	if err := sessions.Save(sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := d.ProcessTurn(context.Background(), testPhone, "check-in", "")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if strings.Contains(msgs[0].Body, "සැලසුම් කරන ලද outlets නැත") {
		t.Errorf("expected today's plan, got the empty-plan reply: %q", msgs[0].Body)
	}
	if !strings.Contains(msgs[0].Body, "මුළු Outlets: 5") {
		t.Errorf("expected plan summary for 5 outlets, got %q", msgs[0].Body)
	}

	got, err := sessions.Get(testPhone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TargetDate != "2024-03-15" {
		t.Errorf("expected target date rolled to 2024-03-15, got %s", got.TargetDate)
	}
	if len(got.PlanSnapshot) != 0 || len(got.OutletsVisited) != 0 || got.CurrentOutlet != "" {
		t.Errorf("expected yesterday's plan cache cleared, got %+v", got)
	}
}

func TestTurnTransportButtonCodeOverridesText(t *testing.T) {
	p := &testProvider{plan: fiveOutletPlan(), outlets: testOutlets()}
	d, sessions := newTestDriver(p, nil)
	seedSession(t, sessions, models.StateGreeting, nil)

	// The body alone would classify as a greeting; the transport's button
	// code must win.
	msgs := d.ProcessTurn(context.Background(), testPhone, "hello, anything else?", "END_SUMMARY")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Body, "Summary") {
		t.Errorf("expected end-of-day summary, got %q", msgs[0].Body)
	}
	sess, _ := sessions.Get(testPhone)
	if sess.CurrentState != models.StateEndSummary {
		t.Errorf("expected state %s, got %s", models.StateEndSummary, sess.CurrentState)
	}
}

func TestTurnProviderFailureApologizes(t *testing.T) {
	p := &testProvider{planErr: errTest}
	d, sessions := newTestDriver(p, nil)
	seedSession(t, sessions, models.StateGreeting, nil)

	msgs := d.ProcessTurn(context.Background(), testPhone, "check-in", "")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Body != ApologyMessage {
		t.Errorf("expected apology, got %q", msgs[0].Body)
	}
	// The session stays where it was.
	sess, _ := sessions.Get(testPhone)
	if sess.CurrentState != models.StateGreeting {
		t.Errorf("expected state unchanged, got %s", sess.CurrentState)
	}
}

var errTest = errors.New("provider unavailable")
