package logging

import (
	"errors"
	"testing"
	"time"
)

func TestNewFields(t *testing.T) {
	fields := NewFields()
	if fields == nil {
		t.Fatal("NewFields() returned nil")
	}
	if len(fields) != 0 {
		t.Errorf("NewFields() should be empty, got %d fields", len(fields))
	}
}

func TestFields_Component(t *testing.T) {
	fields := NewFields().Component("orchestrator")
	if fields["component"] != "orchestrator" {
		t.Errorf("Component() = %v, want %v", fields["component"], "orchestrator")
	}
}

func TestFields_Operation(t *testing.T) {
	fields := NewFields().Operation("classify")
	if fields["operation"] != "classify" {
		t.Errorf("Operation() = %v, want %v", fields["operation"], "classify")
	}
}

func TestFields_Resource(t *testing.T) {
	fields := NewFields().Resource("rca_run", "run-123")
	if fields["resource_type"] != "rca_run" {
		t.Errorf("Resource() resource_type = %v", fields["resource_type"])
	}
	if fields["resource_name"] != "run-123" {
		t.Errorf("Resource() resource_name = %v", fields["resource_name"])
	}
}

func TestFields_ResourceWithoutName(t *testing.T) {
	fields := NewFields().Resource("rca_run", "")
	if fields["resource_type"] != "rca_run" {
		t.Errorf("Resource() resource_type = %v", fields["resource_type"])
	}
	if _, exists := fields["resource_name"]; exists {
		t.Error("Resource() should not set resource_name when empty")
	}
}

func TestFields_Duration(t *testing.T) {
	fields := NewFields().Duration(150 * time.Millisecond)
	if fields["duration_ms"] != int64(150) {
		t.Errorf("Duration() = %v, want %v", fields["duration_ms"], int64(150))
	}
}

func TestFields_Error(t *testing.T) {
	fields := NewFields().Error(errors.New("insufficient evidence"))
	if fields["error"] != "insufficient evidence" {
		t.Errorf("Error() = %v", fields["error"])
	}
}

func TestFields_ErrorNil(t *testing.T) {
	fields := NewFields().Error(nil)
	if _, exists := fields["error"]; exists {
		t.Error("Error(nil) should not set error field")
	}
}

func TestFields_UserID(t *testing.T) {
	fields := NewFields().UserID("user-123")
	if fields["user_id"] != "user-123" {
		t.Errorf("UserID() = %v", fields["user_id"])
	}
}

func TestFields_UserIDEmpty(t *testing.T) {
	fields := NewFields().UserID("")
	if _, exists := fields["user_id"]; exists {
		t.Error("UserID(\"\") should not set user_id field")
	}
}

func TestFields_RequestID(t *testing.T) {
	fields := NewFields().RequestID("req-123")
	if fields["request_id"] != "req-123" {
		t.Errorf("RequestID() = %v", fields["request_id"])
	}
}

func TestFields_TraceID(t *testing.T) {
	fields := NewFields().TraceID("trace-123")
	if fields["trace_id"] != "trace-123" {
		t.Errorf("TraceID() = %v", fields["trace_id"])
	}
}

func TestFields_StatusCode(t *testing.T) {
	fields := NewFields().StatusCode(404)
	if fields["status_code"] != 404 {
		t.Errorf("StatusCode() = %v", fields["status_code"])
	}
}

func TestFields_Method(t *testing.T) {
	fields := NewFields().Method("POST")
	if fields["method"] != "POST" {
		t.Errorf("Method() = %v", fields["method"])
	}
}

func TestFields_URL(t *testing.T) {
	fields := NewFields().URL("/api/v1/rca-runs")
	if fields["url"] != "/api/v1/rca-runs" {
		t.Errorf("URL() = %v", fields["url"])
	}
}

func TestFields_Count(t *testing.T) {
	fields := NewFields().Count(42)
	if fields["count"] != 42 {
		t.Errorf("Count() = %v", fields["count"])
	}
}

func TestFields_Size(t *testing.T) {
	fields := NewFields().Size(1024)
	if fields["size_bytes"] != int64(1024) {
		t.Errorf("Size() = %v", fields["size_bytes"])
	}
}

func TestFields_Version(t *testing.T) {
	fields := NewFields().Version("v1.2.3")
	if fields["version"] != "v1.2.3" {
		t.Errorf("Version() = %v", fields["version"])
	}
}

func TestFields_Custom(t *testing.T) {
	fields := NewFields().Custom("category", "oom_kill")
	if fields["category"] != "oom_kill" {
		t.Errorf("Custom() = %v", fields["category"])
	}
}

func TestFields_ChainedCalls(t *testing.T) {
	fields := NewFields().
		Component("orchestrator").
		Operation("run").
		Resource("rca_run", "run-123").
		Duration(100 * time.Millisecond).
		Count(5)

	expected := map[string]interface{}{
		"component":     "orchestrator",
		"operation":     "run",
		"resource_type": "rca_run",
		"resource_name": "run-123",
		"duration_ms":   int64(100),
		"count":         5,
	}
	for key, want := range expected {
		if fields[key] != want {
			t.Errorf("chained: %s = %v, want %v", key, fields[key], want)
		}
	}
}

func TestFields_ToLogrus(t *testing.T) {
	fields := NewFields().Component("orchestrator").Operation("run")
	logrusFields := fields.ToLogrus()

	if logrusFields == nil {
		t.Fatal("ToLogrus() should not return nil")
	}
	if logrusFields["component"] != "orchestrator" {
		t.Errorf("ToLogrus() component = %v", logrusFields["component"])
	}
	if logrusFields["operation"] != "run" {
		t.Errorf("ToLogrus() operation = %v", logrusFields["operation"])
	}
}

func TestDatabaseFields(t *testing.T) {
	fields := DatabaseFields("insert", "agent_steps")
	expected := map[string]interface{}{
		"component":     "database",
		"operation":     "insert",
		"resource_type": "table",
		"resource_name": "agent_steps",
	}
	for key, want := range expected {
		if fields[key] != want {
			t.Errorf("DatabaseFields() %s = %v, want %v", key, fields[key], want)
		}
	}
}

func TestHTTPFields(t *testing.T) {
	fields := HTTPFields("POST", "/api/v1/agent-runs", 201)
	expected := map[string]interface{}{
		"component":   "http",
		"method":      "POST",
		"url":         "/api/v1/agent-runs",
		"status_code": 201,
	}
	for key, want := range expected {
		if fields[key] != want {
			t.Errorf("HTTPFields() %s = %v, want %v", key, fields[key], want)
		}
	}
}

func TestWorkflowFields(t *testing.T) {
	fields := WorkflowFields("execute", "rca-job-123")
	expected := map[string]interface{}{
		"component":     "workflow",
		"operation":     "execute",
		"resource_type": "workflow",
		"resource_name": "rca-job-123",
	}
	for key, want := range expected {
		if fields[key] != want {
			t.Errorf("WorkflowFields() %s = %v, want %v", key, fields[key], want)
		}
	}
}

func TestAgentRunFields(t *testing.T) {
	fields := AgentRunFields("ingest", "run-123", 4)
	expected := map[string]interface{}{
		"component":     "agent_run",
		"operation":     "ingest",
		"resource_type": "agent_run",
		"resource_name": "run-123",
		"step_index":    4,
	}
	for key, want := range expected {
		if fields[key] != want {
			t.Errorf("AgentRunFields() %s = %v, want %v", key, fields[key], want)
		}
	}
}

func TestAgentRunFieldsWithoutStepIndex(t *testing.T) {
	fields := AgentRunFields("ingest", "run-123", -1)
	if _, exists := fields["step_index"]; exists {
		t.Error("AgentRunFields() should not set step_index when negative")
	}
}

func TestAIFields(t *testing.T) {
	fields := AIFields("enrich", "claude-3-5-sonnet")
	expected := map[string]interface{}{
		"component": "ai",
		"operation": "enrich",
		"model":     "claude-3-5-sonnet",
	}
	for key, want := range expected {
		if fields[key] != want {
			t.Errorf("AIFields() %s = %v, want %v", key, fields[key], want)
		}
	}
}

func TestMetricsFields(t *testing.T) {
	fields := MetricsFields("record", "failure_rate", 0.42)
	expected := map[string]interface{}{
		"component":   "metrics",
		"operation":   "record",
		"metric_name": "failure_rate",
		"value":       0.42,
	}
	for key, want := range expected {
		if fields[key] != want {
			t.Errorf("MetricsFields() %s = %v, want %v", key, fields[key], want)
		}
	}
}

func TestSecurityFields(t *testing.T) {
	fields := SecurityFields("authenticate", "ingest-client")
	expected := map[string]interface{}{
		"component": "security",
		"operation": "authenticate",
		"subject":   "ingest-client",
	}
	for key, want := range expected {
		if fields[key] != want {
			t.Errorf("SecurityFields() %s = %v, want %v", key, fields[key], want)
		}
	}
}

func TestPerformanceFields(t *testing.T) {
	fields := PerformanceFields("classify_category", 250*time.Millisecond, true)
	expected := map[string]interface{}{
		"component":   "performance",
		"operation":   "classify_category",
		"duration_ms": int64(250),
		"success":     true,
	}
	for key, want := range expected {
		if fields[key] != want {
			t.Errorf("PerformanceFields() %s = %v, want %v", key, fields[key], want)
		}
	}
}
