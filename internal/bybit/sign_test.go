package bybit

import "testing"

func TestWsAuthSignature(t *testing.T) {
	got := WsAuthSignature("secret", 1700000010000)
	want := "7ccf9bb4db01ad0e1ee2c3eef8d8b4730fc9bcab069e44972f6723cde7f692f3"
	if got != want {
		t.Errorf("WsAuthSignature = %s, want %s", got, want)
	}
}

func TestRestSignature(t *testing.T) {
	got := restSignature("secret", "key", 1700000000000, 5000, "category=linear&limit=50")
	want := "94faf6cca730063e390d25267d52c87049e2e6f1ca65112d3fdeaa0282fe2cb0"
	if got != want {
		t.Errorf("restSignature = %s, want %s", got, want)
	}
}

func TestSignaturesDependOnSecret(t *testing.T) {
	if WsAuthSignature("a", 1700000010000) == WsAuthSignature("b", 1700000010000) {
		t.Error("different secrets must produce different signatures")
	}
}
