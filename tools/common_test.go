package tools

import (
	"reflect"
	"testing"
	"time"
)

func TestGetEnvDefaults(t *testing.T) {
	t.Setenv("PP_TEST_STR", "")
	if got := GetEnv("PP_TEST_STR", "def"); got != "def" {
		t.Fatalf("GetEnv = %q", got)
	}
	t.Setenv("PP_TEST_INT", "abc")
	if got := GetEnvInt("PP_TEST_INT", 7); got != 7 {
		t.Fatalf("GetEnvInt on bad input = %d", got)
	}
	t.Setenv("PP_TEST_BOOL", "YES")
	if !GetEnvBool("PP_TEST_BOOL", false) {
		t.Fatal("GetEnvBool(YES) should be true")
	}
}

func TestGetEnvMillis(t *testing.T) {
	t.Setenv("PP_TEST_MS", "1500")
	if got := GetEnvMillis("PP_TEST_MS", time.Second); got != 1500*time.Millisecond {
		t.Fatalf("GetEnvMillis = %v", got)
	}
	t.Setenv("PP_TEST_MS", "")
	if got := GetEnvMillis("PP_TEST_MS", time.Second); got != time.Second {
		t.Fatalf("GetEnvMillis default = %v", got)
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("PP_TEST_LIST", " nats://a:4222, ,nats://b:4222 ")
	got := GetEnvList("PP_TEST_LIST", nil)
	want := []string{"nats://a:4222", "nats://b:4222"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("GetEnvList = %v, want %v", got, want)
	}
	t.Setenv("PP_TEST_LIST", " , ")
	if got := GetEnvList("PP_TEST_LIST", []string{"x"}); !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("GetEnvList default = %v", got)
	}
}
