// Package client assembles the session synchronization layer: transport
// session, room multiplexer, chat service, game synchronizer, and the
// identity gate, plus the single dispatch loop that feeds them.
package client

import (
	"context"
	"log"
	"net/http"

	"github.com/mgauthier/tilewire/internal/chat"
	"github.com/mgauthier/tilewire/internal/game"
	"github.com/mgauthier/tilewire/internal/identity"
	"github.com/mgauthier/tilewire/internal/rooms"
	"github.com/mgauthier/tilewire/internal/session"
	"github.com/mgauthier/tilewire/internal/wire"
)

// LobbyConversation is the well-known global conversation every client
// joins on connect. It routes by name.
const LobbyConversation = "lobby"

// Options configures optional collaborators of a Client.
type Options struct {
	// Enricher resolves display names for inbound messages. Defaults to
	// the passthrough enricher.
	Enricher chat.Enricher
	// HTTPClient is used for backfill fetches. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Client is one session context: it owns its room table and state, and
// is constructed explicitly rather than held in any global registry.
type Client struct {
	session *session.Session
	ident   *identity.Resolver
	mux     *rooms.Multiplexer
	chat    *chat.Service
	game    *game.Synchronizer

	// runCtx spans the time between Connect and Disconnect. Conversation
	// backfills run on it so they outlive short-lived dial contexts.
	runCtx context.Context
	stop   context.CancelFunc
}

// New wires a Client against a websocket URL and the HTTP base URL used
// for conversation history.
func New(wsURL, httpBase string, opts Options) *Client {
	sess := session.New(wsURL)
	ident := identity.NewResolver()
	mux := rooms.NewMultiplexer(sess, ident)
	fetcher := chat.NewFetcher(httpBase, opts.HTTPClient)
	return &Client{
		session: sess,
		ident:   ident,
		mux:     mux,
		chat:    chat.NewService(mux, ident, sess, opts.Enricher, fetcher),
		game:    game.NewSynchronizer(sess),
	}
}

// Connect establishes the connection, starts the dispatch loop and the
// reconnect watcher, and joins the lobby conversation once identity
// resolves.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.session.Connect(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.runCtx = runCtx
	c.stop = cancel

	statuses, cancelStatus := c.session.Status()
	go func() {
		defer cancelStatus()
		c.mux.WatchConnectivity(runCtx, statuses)
	}()
	go c.run(runCtx)

	if err := c.mux.Join(ctx, LobbyConversation); err != nil {
		return err
	}
	c.chat.SetConversation(c.backfillCtx(), &rooms.Room{Name: LobbyConversation})
	return nil
}

// backfillCtx returns the context conversation switches (and their
// backfill fetches) run on.
func (c *Client) backfillCtx() context.Context {
	if c.runCtx != nil {
		return c.runCtx
	}
	return context.Background()
}

// Disconnect tears down the connection and the dispatch loop. Local chat
// and game state is cleared; the server releases room memberships.
func (c *Client) Disconnect() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	c.session.Disconnect()
	c.game.Stop()
	c.chat.ClearLog()
	c.mux.SetCurrent(nil)
}

// JoinGame joins a game room and its chat conversation, makes the game
// conversation current, and seeds the turn timers from the game's
// time-per-turn.
func (c *Client) JoinGame(ctx context.Context, token string, timePerTurnMillis int) error {
	// Bind the game before joining so the resync snapshot sent on join is
	// never dropped.
	c.game.Start(token, timePerTurnMillis)
	if err := c.mux.Join(ctx, token); err != nil {
		c.game.Stop()
		return err
	}
	c.chat.SetConversation(c.backfillCtx(), &rooms.Room{Name: rooms.GameConversationName, ID: token})
	return nil
}

// LeaveGame leaves the active game room and reverts the displayed
// conversation to the lobby.
func (c *Client) LeaveGame(ctx context.Context) error {
	token := c.game.Token()
	c.game.Stop()
	if token != "" {
		if err := c.mux.Leave(token); err != nil {
			return err
		}
	}
	c.chat.SetConversation(c.backfillCtx(), &rooms.Room{Name: LobbyConversation})
	return nil
}

// Chat returns the chat service.
func (c *Client) Chat() *chat.Service { return c.chat }

// Game returns the game synchronizer.
func (c *Client) Game() *game.Synchronizer { return c.game }

// Rooms returns the room multiplexer.
func (c *Client) Rooms() *rooms.Multiplexer { return c.mux }

// Identity returns the identity resolver.
func (c *Client) Identity() *identity.Resolver { return c.ident }

// Session returns the transport session.
func (c *Client) Session() *session.Session { return c.session }

// run dispatches inbound events sequentially, in arrival order, to the
// component that owns each event kind.
func (c *Client) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.session.Events():
			if !ok {
				return
			}
			c.dispatch(ev)
		}
	}
}

func (c *Client) dispatch(ev wire.Event) {
	switch e := ev.(type) {
	case wire.NewMessageEvent:
		c.chat.HandleNew(e.Message)
	case wire.SystemMessageEvent:
		c.chat.HandleSystem(e.Message)
	case wire.ErrorMessageEvent:
		c.chat.HandleError(e.Content)
	case wire.StartTimeEvent:
		c.game.HandleStartTime(e.Millis)
	case wire.RemainingTimeEvent:
		c.game.HandleRemainingTime(e.Millis)
	case wire.GameStateEvent:
		c.game.HandleState(e.State)
	default:
		// Client-bound kinds only; anything else is a server bug.
		log.Printf("client: ignoring unexpected event kind %q", ev.Kind())
	}
}
