package research

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseObservability(t *testing.T) {
	tests := []struct {
		answer         string
		wantObservable bool
		wantOK         bool
	}{
		{"YES", true, true},
		{"yes.", true, true},
		{"Yes, the data is reported in filings.", true, true},
		{"NO", false, true},
		{"No - brand strength is abstract", false, true},
		{"**No**", false, true},
		{"Not directly observable", false, true},
		{"Abstract", false, true},
		{"", false, false},
		{"Maybe", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			observable, ok := ParseObservability(tt.answer)
			if observable != tt.wantObservable || ok != tt.wantOK {
				t.Errorf("ParseObservability(%q) = (%v, %v), want (%v, %v)",
					tt.answer, observable, ok, tt.wantObservable, tt.wantOK)
			}
		})
	}
}

func TestLooksAbstract(t *testing.T) {
	if !LooksAbstract("assess brand moat strength") {
		t.Error("brand moat strength should look abstract")
	}
	if LooksAbstract("Retrieve 2023 revenue for AAPL") {
		t.Error("revenue retrieval should not look abstract")
	}
}

func TestParseProxyHypothesis(t *testing.T) {
	want := ProxyHypothesis{
		UnobservableClaim: "The brand has a durable moat",
		DeductiveChain:    "A durable moat allows premium pricing, which shows up as high gross margin",
		ObservableProxy:   "gross margin",
	}

	tests := []struct {
		name    string
		text    string
		want    ProxyHypothesis
		wantErr bool
	}{
		{
			name: "bare JSON",
			text: `{"unobservable_claim": "The brand has a durable moat", "deductive_chain": "A durable moat allows premium pricing, which shows up as high gross margin", "observable_proxy": "gross margin"}`,
			want: want,
		},
		{
			name: "JSON wrapped in prose and fences",
			text: "Here is the hypothesis:\n```json\n{\"unobservable_claim\": \" The brand has a durable moat \", \"deductive_chain\": \"A durable moat allows premium pricing, which shows up as high gross margin\", \"observable_proxy\": \"gross margin\"}\n```",
			want: want,
		},
		{
			name:    "missing field",
			text:    `{"unobservable_claim": "x", "deductive_chain": "y"}`,
			wantErr: true,
		},
		{
			name:    "blank field",
			text:    `{"unobservable_claim": "x", "deductive_chain": "y", "observable_proxy": "   "}`,
			wantErr: true,
		},
		{
			name:    "not JSON",
			text:    "I cannot produce a hypothesis.",
			wantErr: true,
		},
		{
			name:    "broken JSON",
			text:    `{"unobservable_claim": "x",`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProxyHypothesis(tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("error = %v, want ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseProxyHypothesis() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProxyRoundTripThroughStorage(t *testing.T) {
	p := DefaultProxyHypothesis("assess brand moat strength")
	stored, err := EncodeProxy(p)
	if err != nil {
		t.Fatalf("EncodeProxy: %v", err)
	}
	decoded, err := DecodeProxy(stored)
	if err != nil {
		t.Fatalf("DecodeProxy: %v", err)
	}
	if diff := cmp.Diff(&p, decoded); diff != "" {
		t.Errorf("proxy mismatch (-want +got):\n%s", diff)
	}

	none, err := DecodeProxy("")
	if err != nil || none != nil {
		t.Errorf("DecodeProxy(\"\") = (%v, %v), want (nil, nil)", none, err)
	}
}

func TestRewriteDescriptionTargetsProxy(t *testing.T) {
	p := ProxyHypothesis{ObservableProxy: "gross margin"}
	got := RewriteDescription("assess brand moat strength", p)
	want := "Measure gross margin as an observable proxy for: assess brand moat strength"
	if got != want {
		t.Errorf("RewriteDescription() = %q, want %q", got, want)
	}
}

func TestParseDataGap(t *testing.T) {
	if _, ok := ParseDataGap("  \n "); ok {
		t.Error("blank gap should be rejected")
	}
	gap, ok := ParseDataGap(` "No source reports brand loyalty directly." `)
	if !ok || gap != "No source reports brand loyalty directly." {
		t.Errorf("ParseDataGap() = (%q, %v)", gap, ok)
	}
}
