package transport

import (
	"bufio"
	"testing"
)

func TestDialExternalRoundTripsThroughCat(t *testing.T) {
	tr, err := DialExternal([]string{"cat"})
	if err != nil {
		t.Fatalf("DialExternal: %v", err)
	}
	defer tr.Close()

	if tr.Secure() {
		t.Fatal("external transport reported secure")
	}
	if tr.Stderr() == nil {
		t.Fatal("external transport should expose a stderr stream")
	}

	if _, err := tr.Write([]byte("ping\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	line, err := bufio.NewReader(tr).ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if line != "ping\n" {
		t.Fatalf("got %q, want %q", line, "ping\n")
	}
}

func TestDialExternalFailsOnMissingCommand(t *testing.T) {
	if _, err := DialExternal([]string{"hvrpc-definitely-not-a-real-command"}); err == nil {
		t.Fatal("expected an error for a nonexistent command")
	}
}

func TestSSHCommandSynthesizesExpectedArgv(t *testing.T) {
	got := sshCommand(SSHOptions{
		Host:       "hv1.example.test",
		Port:       2222,
		User:       "libvirt",
		NoTTY:      true,
		SocketPath: "/var/run/libvirt/libvirt-sock",
	})
	want := []string{"ssh", "-p", "2222", "-l", "libvirt", "-T", "hv1.example.test", "nc", "-U", "/var/run/libvirt/libvirt-sock"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("arg %d: got %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}
}
