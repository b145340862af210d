package parser

import "testing"

func TestHTMLParser_Parse(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "empty",
			html: "   ",
			want: "",
		},
		{
			name: "paragraphs",
			html: "<html><head><style>p{color:red}</style></head><body><p>Hello</p><p>World</p></body></html>",
			want: "Hello\nWorld",
		},
		{
			name: "script removed",
			html: "<div>Visible<script>alert(1)</script></div>",
			want: "Visible",
		},
		{
			name: "list items",
			html: "<ul><li>one</li><li>two</li></ul>",
			want: "- one\n- two",
		},
		{
			name: "link kept",
			html: `<p>Open <a href="https://example.com/x">dashboard</a></p>`,
			want: "Open dashboard (https://example.com/x)",
		},
		{
			name: "image alt",
			html: `<p><img src="cid:logo" alt="ACME"> news</p>`,
			want: "[ACME] news",
		},
		{
			name: "invisible characters",
			html: "<p>co\u200bde\u00ad</p>",
			want: "code",
		},
		{
			name: "collapsed whitespace",
			html: "<p>a    b\t\tc</p>",
			want: "a b c",
		},
	}

	p := NewHTMLParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Parse(tt.html)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.html, got, tt.want)
			}
		})
	}
}

func TestHTMLParser_WithoutLinks(t *testing.T) {
	p := &HTMLParser{}

	got, err := p.Parse(`<a href="https://example.com">click</a>`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != "click" {
		t.Errorf("Parse = %q, want %q", got, "click")
	}
}
