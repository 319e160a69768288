package compactor

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/crimson-sun/sluice/internal/model"
)

// --- Realistic row messages ---

var jsonStructuredLog = `{"level":"error","msg":"connection timeout to payment service","trace_id":"a1b2c3d4e5f6","span_id":"1234abcd","request_id":"req-99887766","service":"checkout","host":"api-east-1","latency_ms":30000,"status_code":504,"path":"/api/v2/payments/charge","method":"POST","user_id":"usr_4821","correlation_id":"corr-xyz-789","dd.trace_id":"8877665544","dd.span_id":"1122334455"}`

var javaStackTrace = `java.lang.NullPointerException: Cannot invoke method on null reference
	at com.example.payments.PaymentService.processCharge(PaymentService.java:142)
	at com.example.payments.PaymentService.charge(PaymentService.java:98)
	at com.example.api.PaymentController.handleCharge(PaymentController.java:67)
	at com.example.api.PaymentController.post(PaymentController.java:42)
	at org.springframework.web.servlet.FrameworkServlet.service(FrameworkServlet.java:897)
	at javax.servlet.http.HttpServlet.service(HttpServlet.java:750)
	at org.apache.catalina.core.ApplicationFilterChain.doFilter(ApplicationFilterChain.java:231)
	at org.apache.catalina.core.ApplicationFilterChain.internalDoFilter(ApplicationFilterChain.java:178)
	at org.springframework.web.filter.RequestContextFilter.doFilterInternal(RequestContextFilter.java:100)
	at org.springframework.web.filter.OncePerRequestFilter.doFilter(OncePerRequestFilter.java:107)
	at org.apache.catalina.core.ApplicationFilterChain.doFilter(ApplicationFilterChain.java:231)
	at org.springframework.web.filter.CharacterEncodingFilter.doFilterInternal(CharacterEncodingFilter.java:201)
	at org.springframework.web.filter.OncePerRequestFilter.doFilter(OncePerRequestFilter.java:107)
	at org.apache.catalina.core.ApplicationFilterChain.doFilter(ApplicationFilterChain.java:231)
	at org.apache.catalina.core.StandardWrapperValve.invoke(StandardWrapperValve.java:213)
	at org.apache.catalina.core.StandardContextValve.invoke(StandardContextValve.java:175)
	at org.apache.catalina.authenticator.AuthenticatorBase.invoke(AuthenticatorBase.java:525)
	at org.apache.catalina.core.StandardHostValve.invoke(StandardHostValve.java:112)
	at org.apache.catalina.valves.ErrorReportValve.invoke(ErrorReportValve.java:83)
	at org.apache.catalina.core.StandardEngineValve.invoke(StandardEngineValve.java:78)
	at org.apache.catalina.connector.CoyoteAdapter.service(CoyoteAdapter.java:423)
	at org.apache.coyote.http11.Http11Processor.service(Http11Processor.java:374)
	at org.apache.coyote.AbstractProcessorLight.process(AbstractProcessorLight.java:65)
	at org.apache.coyote.AbstractProtocol$ConnectionHandler.process(AbstractProtocol.java:868)
	at org.apache.tomcat.util.net.NioEndpoint$SocketProcessor.doRun(NioEndpoint.java:1590)
	at org.apache.tomcat.util.net.SocketProcessorBase.run(SocketProcessorBase.java:49)
	at java.util.concurrent.ThreadPoolExecutor.runWorker(ThreadPoolExecutor.java:1149)
	at java.util.concurrent.ThreadPoolExecutor$Worker.run(ThreadPoolExecutor.java:624)
	at org.apache.tomcat.util.threads.TaskThread$WrappingRunnable.run(TaskThread.java:61)
	at java.lang.Thread.run(Thread.java:748)`

var goPanicDump = `goroutine 1 [running]:
main.processRequest(0xc0000b4000, 0x1a4)
	/app/cmd/server/main.go:142 +0x2a5
net/http.(*ServeMux).ServeHTTP(0xc0000a8000, {0x7f4c20, 0xc0000b2000}, 0xc0000b4000)
	/usr/local/go/src/net/http/server.go:2487 +0x149
net/http.serverHandler.ServeHTTP({0xc000098060}, {0x7f4c20, 0xc0000b2000}, 0xc0000b4000)
	/usr/local/go/src/net/http/server.go:2908 +0x43f
net/http.(*conn).serve(0xc0000b0000, {0x7f5460, 0xc000096480})
	/usr/local/go/src/net/http/server.go:1989 +0x1297
net/http.(*Server).Serve.func3()
	/usr/local/go/src/net/http/server.go:3101 +0x4f
runtime.goexit()
	/usr/local/go/src/runtime/asm_amd64.s:1571 +0x1
goroutine 2 [running]:
database/sql.(*DB).connectionOpener(0xc00009e000, {0x7f5460, 0xc000096480})
	/usr/local/go/src/database/sql/sql.go:1189 +0x85
goroutine 3 [running]:
database/sql.(*DB).connectionResetter(0xc00009e000, {0x7f5460, 0xc000096480})
	/usr/local/go/src/database/sql/sql.go:1207 +0x85
goroutine 4 [running]:
net/http.(*connReader).backgroundRead(0xc0000b0070)
	/usr/local/go/src/net/http/server.go:678 +0x3e`

var plainTextError = `ERROR [2026-02-19 12:00:00.123] UserService — connection refused to database
host=db-primary port=5432 retries=3 last_error="dial tcp 10.0.1.50:5432: connect: connection refused"
service=user-api region=us-east-1 deployment=v2.4.1`

var shortRequestLog = `2026-02-19T12:00:00Z INFO GET /api/v2/health 200 2ms`

// --- Batch compaction ---

func realisticBatch() []model.Row {
	return []model.Row{
		{ID: "1", Message: javaStackTrace, Severity: "error", Source: "payments"},
		{ID: "2", Message: jsonStructuredLog, Severity: "error", Source: "checkout"},
		{ID: "3", Message: goPanicDump, Severity: "fatal", Source: "server"},
		{ID: "4", Message: plainTextError, Severity: "error", Source: "users"},
		{ID: "5", Message: shortRequestLog, Severity: "info", Source: "edge"},
	}
}

func messageTokens(rows []model.Row) int {
	n := 0
	for _, r := range rows {
		n += EstimateTokens(r.Message)
	}
	return n
}

func TestBatchMinimalReducesTokens(t *testing.T) {
	rows := realisticBatch()
	out := New(Minimal).Rows(rows)

	before, after := messageTokens(rows), messageTokens(out)
	reduction := float64(before-after) / float64(before) * 100
	if reduction < 50 {
		t.Fatalf("expected >50%% token reduction, got %.1f%% (before=%d, after=%d)", reduction, before, after)
	}
	for _, r := range out {
		if !utf8.ValidString(r.Message) {
			t.Fatalf("row %s: invalid UTF-8", r.ID)
		}
		if utf8.RuneCountInString(r.Message) > 203 {
			t.Fatalf("row %s: expected at most 203 runes, got %d", r.ID, utf8.RuneCountInString(r.Message))
		}
	}
	if out[4].Message != shortRequestLog {
		t.Fatalf("short message should be unchanged, got %q", out[4].Message)
	}
}

func TestBatchStandardStripsCorrelationFields(t *testing.T) {
	out := New(Standard).Rows(realisticBatch())
	structured := out[1].Message
	for _, field := range []string{"trace_id", "span_id", "request_id", "correlation_id", "dd.trace_id", "dd.span_id"} {
		if strings.Contains(structured, `"`+field+`"`) {
			t.Fatalf("expected %s stripped, got %s", field, structured)
		}
	}
	for _, field := range []string{"level", "msg", "service", "status_code"} {
		if !strings.Contains(structured, field) {
			t.Fatalf("expected %s preserved, got %s", field, structured)
		}
	}
	if !strings.Contains(out[0].Message, "frames omitted") {
		t.Fatal("expected the Java trace folded at Standard")
	}
}

func TestBatchFullPreservesEverything(t *testing.T) {
	rows := realisticBatch()
	out := New(Full).Rows(rows)
	for i := range rows {
		if out[i].Message != rows[i].Message {
			t.Fatalf("row %s: Full should preserve the message unchanged", rows[i].ID)
		}
	}
}

func TestCompactSummaries(t *testing.T) {
	cmp := New(Minimal)
	for _, tt := range []struct {
		raw, severity, want string
	}{
		{javaStackTrace, "error", "java.lang.NullPointerException"},
		{goPanicDump, "fatal", "goroutine 1"},
		{plainTextError, "error", "UserService"},
	} {
		compacted := cmp.Compact(tt.raw, tt.severity)
		if s := Summarize(compacted); !strings.Contains(s, tt.want) {
			t.Fatalf("expected summary of compacted message to keep %q, got %q", tt.want, s)
		}
	}
}
