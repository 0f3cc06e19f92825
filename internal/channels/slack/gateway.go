package slack

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"golang.org/x/sync/errgroup"

	"hitlbot/internal/logging"
	"hitlbot/internal/observability"
)

// Interaction kinds recorded in metrics.
const (
	kindMention = "mention"
	kindAction  = "action"
	kindView    = "view_submission"
)

// acker acknowledges Socket Mode envelopes.
type acker interface {
	Ack(req socketmode.Request, payload ...interface{})
}

// Gateway receives Slack events over Socket Mode and dispatches each one to
// the handler on its own goroutine.
type Gateway struct {
	cfg     Config
	api     *slackapi.Client
	handler *Handler
	logger  logging.Logger
	metrics *observability.MetricsCollector

	dedupMu    sync.Mutex
	dedupCache *lru.Cache[string, time.Time]
	now        func() time.Time

	inflight sync.WaitGroup
}

// NewAPIClient builds the Web API client shared by the messenger and the gateway.
func NewAPIClient(cfg Config) *slackapi.Client {
	cfg = cfg.withDefaults()
	return slackapi.New(cfg.BotToken,
		slackapi.OptionAppLevelToken(cfg.AppToken),
		slackapi.OptionAPIURL(cfg.APIURL),
		slackapi.OptionDebug(cfg.Debug),
	)
}

// NewGateway creates a gateway. api must carry the app-level token.
func NewGateway(cfg Config, api *slackapi.Client, handler *Handler, metrics *observability.MetricsCollector, logger logging.Logger) (*Gateway, error) {
	if handler == nil {
		return nil, fmt.Errorf("slack gateway requires a handler")
	}
	if strings.TrimSpace(cfg.BotToken) == "" || strings.TrimSpace(cfg.AppToken) == "" {
		return nil, fmt.Errorf("slack gateway requires bot_token and app_token")
	}
	if !strings.HasPrefix(cfg.AppToken, "xapp-") {
		return nil, fmt.Errorf("slack app_token must be an app-level token (xapp-...)")
	}
	cfg = cfg.withDefaults()
	dedupCache, err := lru.New[string, time.Time](cfg.DedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("slack event deduper init: %w", err)
	}
	return &Gateway{
		cfg:        cfg,
		api:        api,
		handler:    handler,
		logger:     logging.OrNop(logger),
		metrics:    metrics,
		dedupCache: dedupCache,
		now:        time.Now,
	}, nil
}

// Start connects and serves events until ctx is done, then waits for
// in-flight events to finish.
func (g *Gateway) Start(ctx context.Context) error {
	client := socketmode.New(g.api, socketmode.OptionDebug(g.cfg.Debug))

	eg, runCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return client.RunContext(runCtx)
	})
	eg.Go(func() error {
		return g.consume(runCtx, client.Events, client)
	})
	err := eg.Wait()
	g.inflight.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (g *Gateway) consume(ctx context.Context, events <-chan socketmode.Event, ack acker) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			g.dispatch(ctx, evt, ack)
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, evt socketmode.Event, ack acker) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		g.logger.Info("Connecting to Slack with Socket Mode...")
	case socketmode.EventTypeConnected:
		g.logger.Info("Connected to Slack with Socket Mode")
	case socketmode.EventTypeConnectionError:
		g.logger.Warn("Slack Socket Mode connection failed, retrying")
	case socketmode.EventTypeEventsAPI:
		g.ack(evt, ack)
		data, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			g.logger.Warn("Ignored events API payload of type %T", evt.Data)
			return
		}
		g.routeEventsAPI(ctx, data)
	case socketmode.EventTypeInteractive:
		g.ack(evt, ack)
		callback, ok := evt.Data.(slackapi.InteractionCallback)
		if !ok {
			g.logger.Warn("Ignored interactive payload of type %T", evt.Data)
			return
		}
		g.routeInteraction(ctx, callback)
	}
}

func (g *Gateway) ack(evt socketmode.Event, ack acker) {
	if evt.Request != nil && ack != nil {
		ack.Ack(*evt.Request)
	}
}

func (g *Gateway) routeEventsAPI(ctx context.Context, data slackevents.EventsAPIEvent) {
	if data.Type != slackevents.CallbackEvent {
		return
	}
	mention, ok := data.InnerEvent.Data.(*slackevents.AppMentionEvent)
	if !ok {
		return
	}
	ev := MentionEvent{
		Channel:  mention.Channel,
		Text:     mention.Text,
		TS:       mention.TimeStamp,
		ThreadTS: mention.ThreadTimeStamp,
		TeamID:   data.TeamID,
		UserID:   mention.User,
	}
	if g.isDuplicate("mention:" + ev.Channel + ":" + ev.TS) {
		g.logger.Debug("Dropped duplicate mention %s in %s", ev.TS, ev.Channel)
		g.metrics.RecordInteraction(ctx, kindMention, "duplicate")
		return
	}
	g.spawn(ctx, kindMention, func(ctx context.Context) error {
		return g.handler.HandleMention(ctx, ev)
	})
}

func (g *Gateway) routeInteraction(ctx context.Context, callback slackapi.InteractionCallback) {
	switch callback.Type {
	case slackapi.InteractionTypeBlockActions:
		for _, action := range callback.ActionCallback.BlockActions {
			if action == nil {
				continue
			}
			ev := ActionEvent{
				ActionID:        action.ActionID,
				Channel:         callback.Channel.ID,
				MessageTS:       callback.Message.Timestamp,
				MessageThreadTS: callback.Message.ThreadTimestamp,
				TriggerID:       callback.TriggerID,
			}
			if g.isDuplicate("action:" + ev.ActionID + ":" + ev.TriggerID) {
				g.metrics.RecordInteraction(ctx, kindAction, "duplicate")
				continue
			}
			g.spawn(ctx, kindAction, func(ctx context.Context) error {
				return g.handler.HandleAction(ctx, ev)
			})
		}
	case slackapi.InteractionTypeViewSubmission:
		sub := ViewSubmission{
			CallbackID:      callback.View.CallbackID,
			PrivateMetadata: callback.View.PrivateMetadata,
			Reason:          reasonFromState(callback.View.State),
		}
		g.spawn(ctx, kindView, func(ctx context.Context) error {
			return g.handler.HandleViewSubmission(ctx, sub)
		})
	}
}

func reasonFromState(state *slackapi.ViewState) string {
	if state == nil {
		return ""
	}
	block, ok := state.Values[ReasonBlockID]
	if !ok {
		return ""
	}
	return block[ReasonInputActionID].Value
}

// spawn runs fn detached from ctx cancellation so a shutdown lets in-flight
// runs drain their agent streams.
func (g *Gateway) spawn(ctx context.Context, kind string, fn func(context.Context) error) {
	logID := logging.NewLogID()
	ctx = observability.ContextWithLogID(context.WithoutCancel(ctx), logID)
	g.inflight.Add(1)
	go func() {
		defer g.inflight.Done()
		logger := logging.FromContext(ctx, g.logger)
		logger.Debug("Handling %s", kind)
		if err := fn(ctx); err != nil {
			logger.Error("Failed to handle %s: %v", kind, err)
			g.metrics.RecordInteraction(ctx, kind, "error")
			return
		}
		g.metrics.RecordInteraction(ctx, kind, "ok")
	}()
}

// Wait blocks until all dispatched events are handled.
func (g *Gateway) Wait() {
	g.inflight.Wait()
}

func (g *Gateway) isDuplicate(key string) bool {
	g.dedupMu.Lock()
	defer g.dedupMu.Unlock()

	now := g.now()
	if ts, ok := g.dedupCache.Get(key); ok {
		if now.Sub(ts) <= g.cfg.DedupTTL {
			return true
		}
		g.dedupCache.Remove(key)
	}
	g.dedupCache.Add(key, now)
	return false
}
