package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dispenser-service/internal/logger"
	"dispenser-service/internal/types"

	"github.com/redis/go-redis/v9"
)

type Callbacks struct {
	CardCallback     func(string) error // card UID from the reader
	StateCallback    func(string) error // "logout", "reset"
	DispenseCallback func(string) error // "abort"
	CatalogCallback  func(string) error // "refresh"
}

type RedisClient struct {
	client    *redis.Client
	callbacks Callbacks
	logger    *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewRedisClient(addr string, l *logger.Logger, callbacks Callbacks) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   0,
		}),
		callbacks: callbacks,
		logger:    l,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetCallbacks installs the command handlers. Must be called before
// StartListening.
func (r *RedisClient) SetCallbacks(callbacks Callbacks) {
	r.callbacks = callbacks
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)

	if err := r.client.Ping(r.ctx).Err(); err != nil {
		r.logger.Infof("Redis connection failed: %v", err)
		return fmt.Errorf("Redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")
	return nil
}

// StartListening starts all Redis listeners after system initialization is complete
func (r *RedisClient) StartListening() error {
	r.logger.Infof("Starting Redis listeners")

	pubsub := r.client.Subscribe(r.ctx, "cardreader")
	r.logger.Infof("Subscribed to Redis channels: cardreader")

	r.wg.Add(1)
	go r.redisListener(pubsub)

	// List command listeners for LPUSH commands
	r.wg.Add(3)
	go r.listCommandListener("kiosk:state", r.handleStateCommand)
	go r.listCommandListener("kiosk:dispense", r.handleDispenseCommand)
	go r.listCommandListener("kiosk:catalog", r.handleCatalogCommand)

	return nil
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting %s listener", key)
			return
		default:
			// Use BRPOP with a short timeout to allow periodic context cancellation checks
			result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
			if err != nil {
				if err == redis.Nil {
					// Timeout elapsed, loop back to check context
					continue
				}
				if err == context.Canceled {
					r.logger.Infof("Context cancelled, exiting %s listener", key)
					return
				}
				r.logger.Infof("Error reading from %s list: %v", key, err)
				continue
			}

			select {
			case <-r.ctx.Done():
				r.logger.Infof("Context cancelled, exiting %s listener", key)
				return
			default:
				if len(result) >= 2 { // BRPOP returns [key, value]
					value := result[1]
					r.logger.Debugf("Received command from %s: %s", key, value)
					if err := handler(value); err != nil {
						r.logger.Warnf("Error handling %s command: %v", key, err)
					}
				}
			}
		}
	}
}

func (r *RedisClient) handleStateCommand(value string) error {
	if r.callbacks.StateCallback == nil {
		return nil
	}
	switch value {
	case "logout", "reset":
		return r.callbacks.StateCallback(value)
	default:
		r.logger.Infof("Invalid state command value: %s", value)
		return fmt.Errorf("invalid state command: %s", value)
	}
}

func (r *RedisClient) handleDispenseCommand(value string) error {
	if r.callbacks.DispenseCallback == nil {
		return nil
	}
	switch value {
	case "abort":
		return r.callbacks.DispenseCallback(value)
	default:
		r.logger.Infof("Invalid dispense command value: %s", value)
		return fmt.Errorf("invalid dispense command: %s", value)
	}
}

func (r *RedisClient) handleCatalogCommand(value string) error {
	if r.callbacks.CatalogCallback == nil {
		return nil
	}
	switch value {
	case "refresh":
		return r.callbacks.CatalogCallback(value)
	default:
		r.logger.Infof("Invalid catalog command value: %s", value)
		return fmt.Errorf("invalid catalog command: %s", value)
	}
}

func (r *RedisClient) redisListener(pubsub *redis.PubSub) {
	defer r.wg.Done()
	defer pubsub.Close()

	r.logger.Infof("Starting Redis message listener")
	channel := pubsub.Channel()

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting listener")
			return
		case msg, ok := <-channel:
			if !ok {
				r.logger.Infof("Redis channel closed unexpectedly")
				r.logger.Fatalf("Redis connection lost, exiting to allow systemd restart")
			}
			if msg == nil {
				r.logger.Infof("Received nil Redis message")
				r.logger.Fatalf("Redis connection lost, exiting to allow systemd restart")
			}

			r.logger.Debugf("Received Redis message: channel=%s payload=%s", msg.Channel, msg.Payload)

			switch msg.Channel {
			case "cardreader":
				if r.callbacks.CardCallback != nil && msg.Payload != "" {
					if err := r.callbacks.CardCallback(msg.Payload); err != nil {
						r.logger.Infof("Failed to handle card scan: %v", err)
					}
				}
			}
		}
	}
}

// publishHashSet is a helper that atomically updates a hash field and publishes a notification
func (r *RedisClient) publishHashSet(hash, field string, value interface{}, channel, payload string) error {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, hash, field, value)
	pipe.Publish(r.ctx, channel, payload)
	_, err := pipe.Exec(r.ctx)
	return err
}

// publishHashDel is a helper that atomically deletes a hash field and publishes a notification
func (r *RedisClient) publishHashDel(hash, field, channel, payload string) error {
	pipe := r.client.Pipeline()
	pipe.HDel(r.ctx, hash, field)
	pipe.Publish(r.ctx, channel, payload)
	_, err := pipe.Exec(r.ctx)
	return err
}

func (r *RedisClient) PublishSessionState(state types.SessionState) error {
	r.logger.Infof("Publishing kiosk state: %s", state)
	timestamp := time.Now().Format(time.RFC3339)

	// Atomically set both state and timestamp fields
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, "kiosk", "state", string(state))
	pipe.HSet(r.ctx, "kiosk", "state:timestamp", timestamp)
	pipe.Publish(r.ctx, "kiosk", "state")
	_, err := pipe.Exec(r.ctx)

	if err != nil {
		r.logger.Warnf("Failed to publish kiosk state: %v", err)
		return err
	}
	r.logger.Debugf("Successfully published kiosk state with timestamp: %s", timestamp)
	return nil
}

// PublishDisplay sets both display lines atomically and notifies the
// display service.
func (r *RedisClient) PublishDisplay(line1, line2 string) error {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, "display", "line1", line1)
	pipe.HSet(r.ctx, "display", "line2", line2)
	pipe.Publish(r.ctx, "display", "lines")
	_, err := pipe.Exec(r.ctx)
	if err != nil {
		r.logger.Warnf("Failed to publish display lines: %v", err)
		return err
	}
	return nil
}

func (r *RedisClient) PublishBalance(balance types.Currency) error {
	if err := r.publishHashSet("kiosk", "balance", balance.String(), "kiosk", "balance"); err != nil {
		r.logger.Warnf("Failed to publish balance: %v", err)
		return err
	}
	return nil
}

func (r *RedisClient) ClearBalance() error {
	if err := r.publishHashDel("kiosk", "balance", "kiosk", "balance"); err != nil {
		r.logger.Warnf("Failed to clear balance: %v", err)
		return err
	}
	return nil
}

// PublishCatalog mirrors the current product list into the kiosk hash
// so the display service can render slot labels without a backend call.
func (r *RedisClient) PublishCatalog(products []types.Product) error {
	pipe := r.client.Pipeline()
	for _, p := range products {
		field := fmt.Sprintf("product:%s", p.Slot)
		value := fmt.Sprintf("%s|%s|%d", p.Name, p.Price, p.Stock)
		pipe.HSet(r.ctx, "kiosk", field, value)
	}
	pipe.Publish(r.ctx, "kiosk", "catalog")
	_, err := pipe.Exec(r.ctx)
	if err != nil {
		r.logger.Warnf("Failed to publish catalog: %v", err)
		return err
	}
	return nil
}

// PublishDispenseEvent reports dispense lifecycle events ("started",
// "complete", "aborted") with the slot that produced them.
func (r *RedisClient) PublishDispenseEvent(slot types.SlotID, event string) error {
	payload := fmt.Sprintf("%s:%s", slot, event)
	if err := r.publishHashSet("kiosk", "dispense", payload, "kiosk", "dispense"); err != nil {
		r.logger.Warnf("Failed to publish dispense event: %v", err)
		return err
	}
	return nil
}

// ReportFaultPresent reports a fault as present to Redis
func (r *RedisClient) ReportFaultPresent(code int, description string, timestamp int64, info string) error {
	r.logger.Infof("Reporting fault present: code=%d, description=%s", code, description)

	pipe := r.client.Pipeline()

	// Add fault code to active faults set
	pipe.SAdd(r.ctx, "kiosk:fault", code)

	// Add fault event to global event stream with metadata
	eventData := map[string]interface{}{
		"group":       "kiosk",
		"code":        code,
		"description": description,
		"ts":          timestamp,
	}
	if info != "" {
		eventData["info"] = info
	}
	pipe.XAdd(r.ctx, &redis.XAddArgs{
		Stream: "events:faults",
		MaxLen: 1000,
		Values: eventData,
	})

	// Publish notification
	pipe.Publish(r.ctx, "kiosk", "fault")

	_, err := pipe.Exec(r.ctx)
	if err != nil {
		r.logger.Infof("Failed to report fault present: %v", err)
		return err
	}

	r.logger.Infof("Successfully reported fault %d as present", code)
	return nil
}

// ReportFaultAbsent reports a fault as absent (cleared) to Redis
func (r *RedisClient) ReportFaultAbsent(code int) error {
	r.logger.Infof("Reporting fault absent: code=%d", code)

	pipe := r.client.Pipeline()

	// Remove fault code from active faults set
	pipe.SRem(r.ctx, "kiosk:fault", code)

	// Add clear event to global event stream (negative code indicates cleared)
	pipe.XAdd(r.ctx, &redis.XAddArgs{
		Stream: "events:faults",
		MaxLen: 1000,
		Values: map[string]interface{}{
			"group": "kiosk",
			"code":  -code,
		},
	})

	// Publish notification
	pipe.Publish(r.ctx, "kiosk", "fault")

	_, err := pipe.Exec(r.ctx)
	if err != nil {
		r.logger.Infof("Failed to report fault absent: %v", err)
		return err
	}

	r.logger.Infof("Successfully reported fault %d as absent", code)
	return nil
}

func (r *RedisClient) Close() error {
	r.logger.Infof("Closing Redis client")
	r.cancel()

	// Wait for all goroutines to finish with a timeout
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Infof("All Redis goroutines finished")
	case <-time.After(5 * time.Second):
		r.logger.Infof("Timeout waiting for Redis goroutines to finish")
	}

	return r.client.Close()
}
