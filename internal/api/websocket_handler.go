package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/brandlens/service/internal/models"
)

// =============================================================================
// WebSocket进度推送 - 轮询之外的可选通道
// 客户端按executionId订阅，每次单元格落库后收到一份执行快照
// =============================================================================

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// 小程序端没有Origin校验需求
	CheckOrigin: func(r *http.Request) bool { return true },
}

// progressConn 订阅连接及其写锁
// gorilla/websocket不允许并发写同一连接，并发单元格完成时推送必须串行
type progressConn struct {
	conn      *websocket.Conn
	writeLock sync.Mutex
}

// writeSnapshot 串行写入一份快照
func (pc *progressConn) writeSnapshot(snapshot *models.ExecutionSnapshot) error {
	pc.writeLock.Lock()
	defer pc.writeLock.Unlock()

	pc.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return pc.conn.WriteJSON(snapshot)
}

// ProgressHub 按执行ID管理订阅连接
type ProgressHub struct {
	subscribers map[string]map[*websocket.Conn]*progressConn // executionID -> 连接集合
	mutex       sync.RWMutex
}

// NewProgressHub 创建推送中心
func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		subscribers: make(map[string]map[*websocket.Conn]*progressConn),
	}
}

// HandleProgressWS WebSocket订阅入口: GET /ws/progress?executionId=xxx
func (hub *ProgressHub) HandleProgressWS(c *gin.Context) {
	executionID := c.Query("executionId")
	if executionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "executionId不能为空",
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ [进度推送] WebSocket升级失败: %v", err)
		return
	}

	hub.subscribe(executionID, conn)
	log.Printf("🔗 [进度推送] 新订阅: executionId=%s", executionID)

	// 阻塞读直到客户端断开，顺带消费客户端的ping帧
	go func() {
		defer hub.unsubscribe(executionID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Publish 推送执行快照给该执行的全部订阅者
// 实现engine.ProgressSink；写失败的连接直接摘除
func (hub *ProgressHub) Publish(snapshot *models.ExecutionSnapshot) {
	if snapshot == nil {
		return
	}

	hub.mutex.RLock()
	conns := make([]*progressConn, 0, len(hub.subscribers[snapshot.ExecutionID]))
	for _, pc := range hub.subscribers[snapshot.ExecutionID] {
		conns = append(conns, pc)
	}
	hub.mutex.RUnlock()

	for _, pc := range conns {
		if err := pc.writeSnapshot(snapshot); err != nil {
			log.Printf("⚠️ [进度推送] 推送失败，移除连接: executionId=%s err=%v", snapshot.ExecutionID, err)
			hub.unsubscribe(snapshot.ExecutionID, pc.conn)
		}
	}
}

// SubscriberCount 当前订阅该执行的连接数
func (hub *ProgressHub) SubscriberCount(executionID string) int {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	return len(hub.subscribers[executionID])
}

func (hub *ProgressHub) subscribe(executionID string, conn *websocket.Conn) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	if hub.subscribers[executionID] == nil {
		hub.subscribers[executionID] = make(map[*websocket.Conn]*progressConn)
	}
	hub.subscribers[executionID][conn] = &progressConn{conn: conn}
}

func (hub *ProgressHub) unsubscribe(executionID string, conn *websocket.Conn) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	if conns, exists := hub.subscribers[executionID]; exists {
		if _, subscribed := conns[conn]; subscribed {
			delete(conns, conn)
			conn.Close()
		}
		if len(conns) == 0 {
			delete(hub.subscribers, executionID)
		}
	}
}
