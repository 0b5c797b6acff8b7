// This is the http face of the relayer.
// It takes deposit and withdrawal notifications from the web client,
// hands them to the orchestrator and serves flow status and metrics.

package reporter

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/common"
	"github.com/TEENet-io/vault-relayer/orchestrator"
)

const (
	ROUTE_HELLO                     = "/hello"
	ROUTE_METRICS                   = "/metrics"
	ROUTE_NOTIFY_DEPOSIT            = "/notify-deposit"
	ROUTE_NOTIFY_WITHDRAWAL         = "/notify-withdrawal"
	ROUTE_RELAYER_NOTIFY_DEPOSIT    = "/relayer/notify-deposit"
	ROUTE_RELAYER_NOTIFY_WITHDRAWAL = "/relayer/notify-withdrawal"
	ROUTE_STATUS                    = "/status/:requestId"
)

const shutdownTimeout = 10 * time.Second

// Relayer is what the routes need from the orchestrator.
type Relayer interface {
	NotifyDeposit(ctx context.Context, n *orchestrator.DepositNotice, mode orchestrator.ResponseMode) (*orchestrator.Ack, error)
	NotifyWithdrawal(ctx context.Context, n *orchestrator.WithdrawalNotice, mode orchestrator.ResponseMode) (*orchestrator.Ack, error)
	Status(requestId [32]byte) (*agreement.FlowRecord, error)
}

type HttpReporter struct {
	serverIP   string // listen ip
	serverPort string // listen port

	relayer  Relayer
	validate *validator.Validate
	gatherer prometheus.Gatherer
	requests *prometheus.CounterVec
}

// NewHttpReporter registers the http metrics with reg and serves gatherer
// on the metrics route. Both may be nil.
func NewHttpReporter(serverIP string, serverPort string, relayer Relayer, reg prometheus.Registerer, gatherer prometheus.Gatherer) *HttpReporter {
	return &HttpReporter{
		serverIP:   serverIP,
		serverPort: serverPort,
		relayer:    relayer,
		validate:   newValidator(),
		gatherer:   gatherer,
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "relayer",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}
}

// Hook up routes & handlers
func (h *HttpReporter) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.countRequests)

	router.GET(ROUTE_HELLO, Hello)
	router.POST(ROUTE_NOTIFY_DEPOSIT, h.NotifyDeposit)
	router.POST(ROUTE_NOTIFY_WITHDRAWAL, h.NotifyWithdrawal)
	router.POST(ROUTE_RELAYER_NOTIFY_DEPOSIT, h.RelayerNotifyDeposit)
	router.POST(ROUTE_RELAYER_NOTIFY_WITHDRAWAL, h.RelayerNotifyWithdrawal)
	router.GET(ROUTE_STATUS, h.Status)
	if h.gatherer != nil {
		router.GET(ROUTE_METRICS, gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	return router
}

func (h *HttpReporter) countRequests(c *gin.Context) {
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	h.requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
}

// Run serves until ctx is done, then shuts the server down gracefully.
func (h *HttpReporter) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(h.serverIP, h.serverPort),
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("http reporter listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func Hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "world",
	})
}

// bind decodes and validates a json body, answering 400 on failure.
func (h *HttpReporter) bind(c *gin.Context, body any) bool {
	if err := c.ShouldBindJSON(body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body: " + err.Error()})
		return false
	}
	if err := h.validate.Struct(body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": describe(err)})
		return false
	}
	return true
}

// replyError maps the error taxonomy to a status code.
func replyError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, agreement.ErrValidation), errors.Is(err, agreement.ErrDerivation):
		code = http.StatusBadRequest
	case errors.Is(err, agreement.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, orchestrator.ErrSupervisorClosed):
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func (h *HttpReporter) NotifyDeposit(c *gin.Context) {
	var body NotifyDepositBody
	if !h.bind(c, &body) {
		return
	}
	notice, err := body.Notice()
	if err != nil {
		replyError(c, err)
		return
	}

	ack, err := h.relayer.NotifyDeposit(c.Request.Context(), notice, orchestrator.ModeAsync)
	h.replyAccepted(c, ack, err)
}

func (h *HttpReporter) NotifyWithdrawal(c *gin.Context) {
	var body NotifyWithdrawalBody
	if !h.bind(c, &body) {
		return
	}
	notice, err := body.Notice()
	if err != nil {
		replyError(c, err)
		return
	}

	ack, err := h.relayer.NotifyWithdrawal(c.Request.Context(), notice, orchestrator.ModeAsync)
	h.replyAccepted(c, ack, err)
}

// replyAccepted answers the fire-and-forget routes. A duplicate is still a
// 202, with accepted false.
func (h *HttpReporter) replyAccepted(c *gin.Context, ack *orchestrator.Ack, err error) {
	if errors.Is(err, agreement.ErrDuplicateRequest) {
		c.JSON(http.StatusAccepted, gin.H{"accepted": false, "message": ack.Message})
		return
	}
	if err != nil {
		replyError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

// RelayerNotifyDeposit runs the same intake as NotifyDeposit but answers
// 200 once the deposit address is checked. A deposit already being watched
// for the same user and token is reported as a success.
func (h *HttpReporter) RelayerNotifyDeposit(c *gin.Context) {
	var body NotifyDepositBody
	if !h.bind(c, &body) {
		return
	}
	notice, err := body.Notice()
	if err != nil {
		replyError(c, err)
		return
	}

	ack, err := h.relayer.NotifyDeposit(c.Request.Context(), notice, orchestrator.ModeAcknowledge)
	if err != nil && !errors.Is(err, agreement.ErrDuplicateRequest) {
		replyError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"message":         ack.Message,
		"userAddress":     body.UserAddress,
		"ethereumAddress": body.EthereumAddress,
	})
}

// RelayerNotifyWithdrawal runs the same flow as NotifyWithdrawal but
// answers 200 with an acknowledgment.
func (h *HttpReporter) RelayerNotifyWithdrawal(c *gin.Context) {
	var body NotifyWithdrawalBody
	if !h.bind(c, &body) {
		return
	}
	notice, err := body.Notice()
	if err != nil {
		replyError(c, err)
		return
	}

	ack, err := h.relayer.NotifyWithdrawal(c.Request.Context(), notice, orchestrator.ModeAcknowledge)
	if err != nil && !errors.Is(err, agreement.ErrDuplicateRequest) {
		replyError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   ack.Message,
		"requestId": body.RequestId,
	})
}

func (h *HttpReporter) Status(c *gin.Context) {
	id, err := common.ParseBytes32(c.Param("requestId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid requestId: " + err.Error()})
		return
	}

	rec, err := h.relayer.Status(id)
	if err != nil {
		replyError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec.ToJSON())
}
