// Package server 选课事件 WebSocket 推送
//
// 管理员接收全部选课事件，教师只接收自己负责模块的事件。
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"nayaschool/internal/apiserver/apiutil"
	"nayaschool/internal/apiserver/auth"
	"nayaschool/internal/shared/cache"
	"nayaschool/internal/shared/eventbus"
	"nayaschool/internal/shared/model"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = 30 * time.Second
)

var feedUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 令牌通过 query 传递，不依赖 Cookie
	},
}

// FeedMessage WebSocket 消息
type FeedMessage struct {
	Type      string      `json:"type"` // connected, enrolment
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// feedStore 推送所需的查询
type feedStore interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetModule(ctx context.Context, id string) (*model.Module, error)
}

// EnrolmentFeed 选课事件推送网关
type EnrolmentFeed struct {
	store   feedStore
	events  eventbus.EnrolmentEventBus
	authCfg auth.Config
	revoked cache.TokenRevocationCache
	metrics *Metrics
}

// NewEnrolmentFeed 创建推送网关
func NewEnrolmentFeed(store feedStore, events eventbus.EnrolmentEventBus, authCfg auth.Config, revoked cache.TokenRevocationCache, metrics *Metrics) *EnrolmentFeed {
	return &EnrolmentFeed{
		store:   store,
		events:  events,
		authCfg: authCfg,
		revoked: revoked,
		metrics: metrics,
	}
}

// HandleWebSocket 处理 WebSocket 连接
//
// 路由: GET /ws/enrolments?token=<access token>
func (f *EnrolmentFeed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		apiutil.WriteError(w, http.StatusUnauthorized, "missing token")
		return
	}
	authUser, err := auth.Authenticate(r.Context(), f.authCfg, f.revoked, token)
	if err != nil {
		apiutil.WriteError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	// 以数据库中的当前角色为准
	user, err := f.store.GetUserByID(r.Context(), authUser.ID)
	if err != nil {
		log.Printf("[ws] failed to load user %s: %v", authUser.ID, err)
		apiutil.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if user == nil {
		apiutil.WriteError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	if user.Role != model.UserRoleAdmin && user.Role != model.UserRoleTeacher {
		apiutil.WriteError(w, http.StatusForbidden, "This action is unauthorized.")
		return
	}

	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	sub, err := f.events.SubscribeEnrolmentEvents(ctx)
	if err != nil {
		log.Printf("[ws] subscribe failed: %v", err)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"))
		return
	}

	f.metrics.WSConnectionOpened()
	defer f.metrics.WSConnectionClosed()
	log.Printf("[ws] %s %s connected", user.Role, user.ID)

	// 读协程：处理 pong 与关闭，连接断开时取消订阅
	go f.readPump(conn, cancel)

	if err := f.send(conn, FeedMessage{
		Type:      "connected",
		Data:      map[string]string{"user_id": user.ID, "role": string(user.Role)},
		Timestamp: time.Now(),
	}); err != nil {
		return
	}

	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "event bus closed"))
				return
			}
			if !f.visible(ctx, user, ev) {
				continue
			}
			if err := f.send(conn, FeedMessage{Type: "enrolment", Data: ev, Timestamp: time.Now()}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *EnrolmentFeed) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(feedPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(feedPongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[ws] read error: %v", err)
			}
			return
		}
	}
}

// visible 教师只能看到自己负责模块的事件
func (f *EnrolmentFeed) visible(ctx context.Context, user *model.User, ev *eventbus.EnrolmentEvent) bool {
	if user.Role == model.UserRoleAdmin {
		return true
	}
	if ev.ModuleID == "" {
		return false
	}
	m, err := f.store.GetModule(ctx, ev.ModuleID)
	if err != nil {
		log.Printf("[ws] failed to load module %s: %v", ev.ModuleID, err)
		return false
	}
	return m != nil && m.TeacherID != nil && *m.TeacherID == user.ID
}

func (f *EnrolmentFeed) send(conn *websocket.Conn, msg FeedMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[ws] marshal error: %v", err)
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[ws] write error: %v", err)
		return err
	}
	f.metrics.RecordWSMessage(msg.Type)
	return nil
}
