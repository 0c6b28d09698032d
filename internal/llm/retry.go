package llm

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

func (c *Client) GenerateWithRetry(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var result *GenerateResponse
	err := c.retryOperation(ctx, func() error {
		var err error
		result, err = c.Generate(req)
		return err
	})
	return result, err
}

func (c *Client) retryOperation(ctx context.Context, operation func() error) error {
	config := DefaultRetryConfig()

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}

		if attempt == config.MaxRetries {
			return fmt.Errorf("operation failed after %d retries: %w", config.MaxRetries, err)
		}

		delay := time.Duration(float64(config.BaseDelay) * math.Pow(1.5, float64(attempt)))
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}

		c.logger.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"delay":   delay,
			"error":   err.Error(),
		}).Warn("Retrying LLM operation")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil
}
