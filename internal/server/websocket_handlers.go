package server

import (
	"context"
	"log/slog"

	"instafeed/internal/live"
	"instafeed/internal/middleware"
	"instafeed/internal/models"
	"instafeed/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type watchFunc[T any] func(ctx context.Context, conn *websocket.Conn, viewer *models.Viewer) (*live.Subscription[T], error)

// socket adapts a standing query into a WebSocket handler. The connection
// stays open until the client leaves or the server shuts down.
func socket[T any](s *Server, kind string, watch watchFunc[T]) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		viewer, _ := conn.Locals(viewerKey).(*models.Viewer)
		if viewer == nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		ctx := s.shutdownCtx
		if ctx == nil {
			ctx = context.Background()
		}
		client := notifications.NewClient(conn, kind, viewer.UID)

		sub, err := watch(ctx, conn, viewer)
		if err != nil {
			middleware.Logger.Debug("live subscription rejected",
				slog.String("kind", kind), slog.String("user_id", viewer.UID), slog.String("error", err.Error()))
			notifications.Reject(client, err)
			return
		}

		middleware.Logger.Debug("live socket opened", slog.String("kind", kind), slog.String("user_id", viewer.UID))
		notifications.Stream(ctx, client, sub)
		middleware.Logger.Debug("live socket closed", slog.String("kind", kind), slog.String("user_id", viewer.UID))
	})
}

// FeedSocket streams the viewer's feed.
// @Summary Live feed
// @Description WebSocket; authenticate with ?ticket= from POST /ws/ticket. Each frame is {type:"snapshot",kind:"feed",data:[]Post}
// @Tags live
// @Param ticket query string true "WebSocket ticket"
// @Success 101
// @Failure 426 {object} models.ErrorResponse
// @Router /ws/feed [get]
func (s *Server) FeedSocket() fiber.Handler {
	return socket(s, "feed", func(ctx context.Context, _ *websocket.Conn, viewer *models.Viewer) (*live.Subscription[[]models.Post], error) {
		return s.feed.WatchFeed(ctx, viewer)
	})
}

// PostSocket streams the viewer's engagement state for one post.
func (s *Server) PostSocket() fiber.Handler {
	return socket(s, "post", func(ctx context.Context, conn *websocket.Conn, viewer *models.Viewer) (*live.Subscription[models.PostEngagement], error) {
		return s.engagement.WatchPost(ctx, viewer, conn.Params("id"))
	})
}

// CommentsSocket streams a post's comment thread.
func (s *Server) CommentsSocket() fiber.Handler {
	return socket(s, "comments", func(ctx context.Context, conn *websocket.Conn, _ *models.Viewer) (*live.Subscription[[]models.Comment], error) {
		return s.comments.WatchComments(ctx, conn.Params("id"))
	})
}

// ConversationSocket streams the conversation between the viewer and :userId.
func (s *Server) ConversationSocket() fiber.Handler {
	return socket(s, "conversation", func(ctx context.Context, conn *websocket.Conn, viewer *models.Viewer) (*live.Subscription[[]models.Message], error) {
		return s.messages.WatchConversation(ctx, viewer, conn.Params("userId"))
	})
}
