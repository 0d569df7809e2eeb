package benchmark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// APIBenchmark 对索引服务的HTTP接口施加并发负载
type APIBenchmark struct {
	BaseURL     string
	Concurrency int
	AuthToken   string
	Client      *http.Client
}

// Request 单个待发送的请求
type Request struct {
	Method string
	Path   string
	Body   interface{}
}

// BenchmarkResult 一组请求的统计结果
type BenchmarkResult struct {
	Name           string        `json:"name"`
	Concurrency    int           `json:"concurrency"`
	TotalRequests  int           `json:"total_requests"`
	SuccessCount   int           `json:"success_count"`
	FailureCount   int           `json:"failure_count"`
	TotalTime      time.Duration `json:"total_time"`
	AverageTime    time.Duration `json:"average_time"`
	P95Time        time.Duration `json:"p95_time"`
	MaxTime        time.Duration `json:"max_time"`
	RequestsPerSec float64       `json:"requests_per_sec"`
	StatusCodes    map[int]int   `json:"status_codes"`
	Errors         []string      `json:"errors"`
}

// envelope 服务统一响应格式
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// NewAPIBenchmark 创建新的负载测试实例
func NewAPIBenchmark(baseURL string, concurrency int, authToken string) *APIBenchmark {
	if concurrency < 1 {
		concurrency = 1
	}
	return &APIBenchmark{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Concurrency: concurrency,
		AuthToken:   authToken,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Login 登录并保存令牌
func (b *APIBenchmark) Login(ctx context.Context, username, password string) error {
	var login struct {
		Token string `json:"token"`
	}
	err := b.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   map[string]string{"username": username, "password": password},
	}, &login)
	if err != nil {
		return fmt.Errorf("登录失败: %w", err)
	}
	b.AuthToken = login.Token
	return nil
}

// Do 发送单个请求，成功时把 data 字段解码到 out
func (b *APIBenchmark) Do(ctx context.Context, r Request, out interface{}) error {
	status, body, err := b.send(ctx, r)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%s %s: 解析响应失败: %w", r.Method, r.Path, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s %s: HTTP %d code=%d %s", r.Method, r.Path, status, env.Code, env.Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (b *APIBenchmark) send(ctx context.Context, r Request) (int, []byte, error) {
	var payload io.Reader
	if r.Body != nil {
		data, err := json.Marshal(r.Body)
		if err != nil {
			return 0, nil, fmt.Errorf("JSON编码错误: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, b.BaseURL+r.Path, payload)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.AuthToken)
	}

	resp, err := b.Client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

// Run 以 Concurrency 为上限并发发送全部请求并统计结果
func (b *APIBenchmark) Run(ctx context.Context, name string, requests []Request) *BenchmarkResult {
	result := &BenchmarkResult{
		Name:          name,
		Concurrency:   b.Concurrency,
		TotalRequests: len(requests),
		StatusCodes:   make(map[int]int),
	}

	var mu sync.Mutex
	durations := make([]time.Duration, 0, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.Concurrency)
	start := time.Now()
	for _, r := range requests {
		r := r
		g.Go(func() error {
			began := time.Now()
			status, _, err := b.send(gctx, r)
			elapsed := time.Since(began)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.FailureCount++
				result.Errors = append(result.Errors, err.Error())
				return nil
			}
			durations = append(durations, elapsed)
			result.StatusCodes[status]++
			if status >= 200 && status < 300 {
				result.SuccessCount++
			} else {
				result.FailureCount++
			}
			return nil
		})
	}
	_ = g.Wait()

	result.TotalTime = time.Since(start)
	if result.TotalTime > 0 {
		result.RequestsPerSec = float64(len(requests)) / result.TotalTime.Seconds()
	}
	if len(durations) > 0 {
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
		var total time.Duration
		for _, d := range durations {
			total += d
		}
		result.AverageTime = total / time.Duration(len(durations))
		result.P95Time = durations[(len(durations)*95-1)/100]
		result.MaxTime = durations[len(durations)-1]
	}
	return result
}

// Summary 返回便于日志输出的统计摘要
func (r *BenchmarkResult) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: 并发=%d 请求=%d 成功=%d 失败=%d 总耗时=%s 平均=%s P95=%s 最大=%s 吞吐=%.2f/s",
		r.Name, r.Concurrency, r.TotalRequests, r.SuccessCount, r.FailureCount,
		r.TotalTime, r.AverageTime, r.P95Time, r.MaxTime, r.RequestsPerSec)

	codes := make([]int, 0, len(r.StatusCodes))
	for code := range r.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(&sb, " [%d]=%d", code, r.StatusCodes[code])
	}
	for i, err := range r.Errors {
		if i >= 5 {
			fmt.Fprintf(&sb, "\n  ... 还有 %d 个错误", len(r.Errors)-5)
			break
		}
		fmt.Fprintf(&sb, "\n  %s", err)
	}
	return sb.String()
}
