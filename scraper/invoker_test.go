package scraper

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"price_crew/models"
)

// helperRegion points a region's worker at this test binary, which then acts
// as a fake worker in the given mode (see TestHelperProcess).
func helperRegion(code, mode string) models.Region {
	return models.Region{
		Code:        code,
		Currency:    "EGP",
		URLTemplate: "https://www.amazon.eg/dp/{id}",
		Worker: models.WorkerRef{
			Command: os.Args[0],
			Args:    []string{"-test.run=TestHelperProcess", "--", mode},
			Env:     []string{"GO_WANT_HELPER_PROCESS=1"},
		},
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: -- mode productId")
		os.Exit(2)
	}
	mode, id := args[1], args[2]

	switch mode {
	case "success":
		fmt.Fprintln(os.Stderr, "fetching page")
		fmt.Printf(`{"status":"success","title":"Echo Dot","price":1299.5,"currency":"EGP","seller":"Amazon.eg","imageUrl":"https://img/x.jpg","productUrl":"https://www.amazon.eg/dp/%s","dataSource":"eg_dom"}`, id)
	case "string-price":
		fmt.Print(`{"status":"success","title":"Echo Dot","price":"1,299.00","dataSource":"eg_dom"}`)
	case "noisy":
		fmt.Println("warming up")
		fmt.Print(`{"status":"unavailable","title":"Echo Dot"}`)
	case "reported":
		fmt.Print(`{"status":"failed"}`)
	case "no-title":
		fmt.Print(`{"status":"success","price":10}`)
	case "bad-status":
		fmt.Print(`{"status":"maybe","title":"x","price":1}`)
	case "garbage":
		fmt.Print("<html>captcha</html>")
	case "empty":
		fmt.Fprintln(os.Stderr, "nothing to say")
	case "exit":
		fmt.Fprintln(os.Stderr, "browser crashed")
		os.Exit(3)
	case "lingering":
		// Leave a child behind that inherits stdout, as a browser would.
		child := exec.Command(os.Args[0], "-test.run=TestHelperProcess", "--", "hang", id)
		child.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
		child.Stdout = os.Stdout
		if err := child.Start(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(4)
		}
		fmt.Print(`{"status":"success","title":"Echo Dot","price":10}`)
	case "slow":
		time.Sleep(time.Second)
		fmt.Print(`{"status":"success","title":"Echo Dot","price":10}`)
	case "hang":
		time.Sleep(30 * time.Second)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", mode)
		os.Exit(2)
	}
}

func TestProcessInvoker_Success(t *testing.T) {
	inv := NewProcessInvoker(0)
	o := inv.Invoke(context.Background(), "B08N5WRWNW", helperRegion("eg", "success"), 10*time.Second)

	if o.Status != models.StatusSuccess {
		t.Fatalf("expected success, got %s (%s)", o.Status, o.ErrorText())
	}
	if o.Price == nil || *o.Price != 1299.5 {
		t.Errorf("unexpected price %v", o.Price)
	}
	if o.Title == nil || *o.Title != "Echo Dot" {
		t.Errorf("unexpected title %v", o.Title)
	}
	if o.SourceURL == nil || *o.SourceURL != "https://www.amazon.eg/dp/B08N5WRWNW" {
		t.Errorf("productUrl should map to sourceUrl, got %v", o.SourceURL)
	}
	if o.DataSource != "eg_dom" || o.Region != "eg" || o.ProductID != "B08N5WRWNW" {
		t.Errorf("unexpected provenance %+v", o)
	}
}

func TestProcessInvoker_OutputMapping(t *testing.T) {
	tests := []struct {
		mode    string
		status  models.OutcomeStatus
		kind    models.FailureKind
		message string
	}{
		{"string-price", models.StatusSuccess, "", ""},
		{"noisy", models.StatusUnavailable, "", ""},
		{"reported", models.StatusFailed, models.FailureReported, "worker reported failure"},
		{"no-title", models.StatusFailed, models.FailureMalformed, models.MsgMalformedOutput},
		{"bad-status", models.StatusFailed, models.FailureMalformed, models.MsgMalformedOutput},
		{"garbage", models.StatusFailed, models.FailureMalformed, models.MsgMalformedOutput},
		{"empty", models.StatusFailed, models.FailureExit, "worker produced no output: nothing to say"},
		{"exit", models.StatusFailed, models.FailureExit, "worker exited with code 3: browser crashed"},
	}

	inv := NewProcessInvoker(0)
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			o := inv.Invoke(context.Background(), "B08N5WRWNW", helperRegion("eg", tt.mode), 10*time.Second)
			if o.Status != tt.status {
				t.Fatalf("status = %s, want %s (%s)", o.Status, tt.status, o.ErrorText())
			}
			if o.Failure != tt.kind {
				t.Errorf("kind = %q, want %q", o.Failure, tt.kind)
			}
			if o.ErrorText() != tt.message {
				t.Errorf("message = %q, want %q", o.ErrorText(), tt.message)
			}
			if o.Currency != "EGP" {
				t.Errorf("currency should fall back to the region, got %q", o.Currency)
			}
		})
	}
}

func TestProcessInvoker_CleanExitWithLingeringChild(t *testing.T) {
	inv := &ProcessInvoker{WaitDelay: 300 * time.Millisecond}
	start := time.Now()
	o := inv.Invoke(context.Background(), "B08N5WRWNW", helperRegion("eg", "lingering"), 10*time.Second)

	if o.Status != models.StatusSuccess {
		t.Fatalf("expected success, got %s %q (%s)", o.Status, o.Failure, o.ErrorText())
	}
	if o.Price == nil || *o.Price != 10 {
		t.Errorf("unexpected price %v", o.Price)
	}
	if took := time.Since(start); took > 5*time.Second {
		t.Errorf("invoke returned after %s, lingering child was not reaped", took)
	}
}

func TestProcessInvoker_Timeout(t *testing.T) {
	inv := NewProcessInvoker(0)
	start := time.Now()
	o := inv.Invoke(context.Background(), "B08N5WRWNW", helperRegion("eg", "hang"), 300*time.Millisecond)

	if o.Status != models.StatusFailed || o.ErrorText() != models.MsgTimeoutExceeded {
		t.Fatalf("expected timeout failure, got %s %q", o.Status, o.ErrorText())
	}
	if o.Failure != models.FailureTimeout {
		t.Errorf("kind = %q", o.Failure)
	}
	if took := time.Since(start); took > 10*time.Second {
		t.Errorf("invoke returned after %s, worker was not killed", took)
	}
}

func TestProcessInvoker_ParentCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	o := NewProcessInvoker(0).Invoke(ctx, "B08N5WRWNW", helperRegion("eg", "hang"), time.Minute)
	if o.Failure != models.FailureCanceled || o.ErrorText() != models.MsgDispatchCanceled {
		t.Fatalf("expected canceled outcome, got %q %q", o.Failure, o.ErrorText())
	}
}

func TestProcessInvoker_SpawnFailure(t *testing.T) {
	region := helperRegion("sa", "success")
	region.Currency = "SAR"
	region.Worker.Command = "/nonexistent/price-crew-worker"

	o := NewProcessInvoker(0).Invoke(context.Background(), "B08N5WRWNW", region, time.Second)
	if o.Status != models.StatusFailed || o.Failure != models.FailureSpawn {
		t.Fatalf("expected spawn failure, got %s %q", o.Status, o.Failure)
	}
	if !strings.HasPrefix(o.ErrorText(), "start worker:") {
		t.Errorf("unexpected message %q", o.ErrorText())
	}
	if o.Currency != "SAR" {
		t.Errorf("currency should come from the registry, got %q", o.Currency)
	}
}

func TestProcessInvoker_OutputLimit(t *testing.T) {
	inv := &ProcessInvoker{MaxOutputBytes: 16}
	o := inv.Invoke(context.Background(), "B08N5WRWNW", helperRegion("eg", "success"), 10*time.Second)
	if o.Failure != models.FailureMalformed {
		t.Fatalf("oversized output should be malformed, got %q %q", o.Failure, o.ErrorText())
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1,299.00", 1299, true},
		{"EGP 2,199", 2199, true},
		{"€ 39.99", 39.99, true},
		{"SAR 85.50 - 90.00", 85.5, true},
		{"39,99 €", 39.99, true},
		{"1.299,00 €", 1299, true},
		{"EUR 2.499.000", 2499000, true},
		{"Price: 12,5", 12.5, true},
		{"AED 1,250.", 1250, true},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParsePrice(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParsePrice(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
