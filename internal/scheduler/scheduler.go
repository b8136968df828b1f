// Package scheduler provides cron-based scheduling for Pocket Coach.
//
// Its main job is the daily morning prompt that greets every enrolled DSR
// with their plan for the day.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/BeatBard/ccs-pops/internal/data"
	"github.com/BeatBard/ccs-pops/internal/genai"
	"github.com/BeatBard/ccs-pops/internal/messaging"
	"github.com/BeatBard/ccs-pops/internal/models"
	"github.com/BeatBard/ccs-pops/internal/session"
)

// DefaultMorningCron fires the morning prompt at 7:00 every day.
const DefaultMorningCron = "0 7 * * *"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Standard 5-field cron parser (min, hour, dom, month, dow) with panic recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// MorningBroadcast returns a job that sends each active session a coached
// morning greeting summarizing the day's plan.
func MorningBroadcast(sessions *session.Manager, provider data.Provider, coach *genai.Coach, svc messaging.Service) func() {
	return func() {
		all, err := sessions.List()
		if err != nil {
			slog.Error("MorningBroadcast failed to list sessions", "error", err)
			return
		}

		date := time.Now().Format("2006-01-02")
		slog.Info("MorningBroadcast starting", "sessions", len(all), "date", date)

		for _, sess := range all {
			ctx, cancel := context.WithTimeout(context.Background(), genai.DefaultRequestTimeout)
			body := morningMessage(ctx, provider, coach, sess.DSRName, date)
			cancel()

			msg := models.OutgoingMessage{
				To:       sess.Phone,
				Body:     body,
				Template: models.TemplateGreeting,
				Buttons: []models.Button{
					models.NewButton(models.ButtonCheckin),
					models.NewButton(models.ButtonOutletDetails),
					models.NewButton(models.ButtonEndSummary),
				},
			}
			if err := svc.Send(context.Background(), msg); err != nil {
				slog.Error("MorningBroadcast send failed", "error", err, "to", sess.Phone)
			}
		}
	}
}

func morningMessage(ctx context.Context, provider data.Provider, coach *genai.Coach, dsrName, date string) string {
	plan, err := provider.DailyPlan(dsrName, date)
	if err != nil {
		slog.Warn("MorningBroadcast plan lookup failed", "error", err, "dsr", dsrName)
		plan = nil
	}

	mc := genai.MorningContext{DSRName: dsrName, OutletsCount: len(plan)}
	for _, entry := range plan {
		if entry.IsPriority() {
			mc.PriorityCount++
		}
		mc.TargetLitres += entry.TargetSalesLitres
	}

	return coach.MorningMessage(ctx, mc)
}
