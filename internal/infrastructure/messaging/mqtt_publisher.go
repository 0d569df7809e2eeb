package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"smarthome-index-service/internal/domain/index"
	"smarthome-index-service/internal/infrastructure/config"
	"smarthome-index-service/pkg/logger"
)

// publishQueueSize 待发布事件队列的容量，队列满时新事件被丢弃
const publishQueueSize = 1024

// MQTTIndexPublisher 将索引变更事件发布到 MQTT，供设备路由等下游刷新本地视图。
// 事件先进入队列，由后台协程逐个发送，调用方不等待 broker 确认
type MQTTIndexPublisher struct {
	Client      mqtt.Client
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration

	queue chan index.IndexEvent
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewMQTTClient 按配置创建 MQTT 客户端（未连接）
func NewMQTTClient(cfg *config.Config) mqtt.Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBrokerURL)
	// 使用唯一的客户端ID，避免同一服务多实例冲突
	opts.SetClientID(fmt.Sprintf("%s-%s", cfg.MQTTClientID, uuid.New().String()[:8]))
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)

	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.Warning("[MQTT] 连接丢失: %v", err)
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		logger.Info("[MQTT] 成功连接到 %s", cfg.MQTTBrokerURL)
	})

	return mqtt.NewClient(opts)
}

// NewMQTTIndexPublisher 创建索引事件发布者并启动发送协程
func NewMQTTIndexPublisher(client mqtt.Client, cfg *config.Config) *MQTTIndexPublisher {
	p := &MQTTIndexPublisher{
		Client:      client,
		TopicPrefix: cfg.MQTTIndexTopic,
		QoS:         byte(cfg.MQTTQoS),
		Timeout:     3 * time.Second,
		queue:       make(chan index.IndexEvent, publishQueueSize),
		done:        make(chan struct{}),
	}
	go p.run()
	return p
}

// Connect 连接到 MQTT 服务器
func (p *MQTTIndexPublisher) Connect() error {
	token := p.Client.Connect()
	if !token.WaitTimeout(p.Timeout) {
		return fmt.Errorf("连接MQTT服务器超时")
	}
	return token.Error()
}

// Topic 返回住宅对应的事件主题
func (p *MQTTIndexPublisher) Topic(homeID string) string {
	return p.TopicPrefix + "/" + homeID
}

// Publish 将索引事件放入发送队列，不阻塞调用方。队列已满或发布者已关闭时返回错误
func (p *MQTTIndexPublisher) Publish(ctx context.Context, event index.IndexEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return fmt.Errorf("MQTT发布者已关闭")
	}

	select {
	case p.queue <- event:
		return nil
	default:
		return fmt.Errorf("索引事件队列已满，丢弃事件: home=%s", event.HomeID)
	}
}

func (p *MQTTIndexPublisher) run() {
	defer close(p.done)
	for event := range p.queue {
		if err := p.send(event); err != nil {
			logger.Warning("[MQTT] 发布索引事件失败: operation=%s home=%s err=%v", event.Operation, event.HomeID, err)
		}
	}
}

// send 同步发送单个事件，QoS 由配置决定
func (p *MQTTIndexPublisher) send(event index.IndexEvent) error {
	if !p.Client.IsConnected() {
		return fmt.Errorf("MQTT客户端未连接")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化索引事件失败: %w", err)
	}

	token := p.Client.Publish(p.Topic(event.HomeID), p.QoS, false, payload)
	if !token.WaitTimeout(p.Timeout) {
		return fmt.Errorf("发布索引事件超时")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("发布索引事件失败: %w", err)
	}
	return nil
}

// Close 停止接收新事件，发送完队列中剩余的事件后断开连接
func (p *MQTTIndexPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	if p.Client.IsConnected() {
		p.Client.Disconnect(250)
	}
}
