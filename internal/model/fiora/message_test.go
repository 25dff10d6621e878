package fiora

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestParseCode(t *testing.T) {
	cases := []struct {
		name     string
		content  string
		wantLang string
		wantCode string
	}{
		{name: "with language", content: "@language=go@fmt.Println(1)", wantLang: "go", wantCode: "fmt.Println(1)"},
		{name: "code contains at", content: "@language=js@a@b", wantLang: "js", wantCode: "a@b"},
		{name: "no marker", content: "plain", wantLang: "", wantCode: "plain"},
		{name: "unterminated marker", content: "@language=go", wantLang: "", wantCode: "@language=go"},
	}

	for _, tc := range cases {
		lang, code := ParseCode(tc.content)
		if lang != tc.wantLang || code != tc.wantCode {
			t.Errorf("%s: ParseCode(%q) = (%q, %q), want (%q, %q)", tc.name, tc.content, lang, code, tc.wantLang, tc.wantCode)
		}
	}
}

func TestResolveURL(t *testing.T) {
	cases := []struct {
		base string
		ref  string
		want string
	}{
		{base: "https://fiora.suisuijiang.com", ref: "//cdn.suisuijiang.com/a.png", want: "https://cdn.suisuijiang.com/a.png"},
		{base: "http://localhost:9200", ref: "//cdn/a.png", want: "http://cdn/a.png"},
		{base: "", ref: "//cdn/a.png", want: "https://cdn/a.png"},
		{base: "https://x", ref: "https://y/b.png", want: "https://y/b.png"},
		{base: "https://x", ref: "", want: ""},
	}

	for _, tc := range cases {
		if got := ResolveURL(tc.base, tc.ref); got != tc.want {
			t.Errorf("ResolveURL(%q, %q) = %q, want %q", tc.base, tc.ref, got, tc.want)
		}
	}
}

func TestAssetExt(t *testing.T) {
	if got := AssetExt("//cdn/avatar/1.jpg?width=40"); got != ".jpg" {
		t.Fatalf("unexpected ext: %q", got)
	}
	if got := AssetExt("https://cdn/avatar"); got != "" {
		t.Fatalf("expected empty ext, got %q", got)
	}
}

func TestSummary(t *testing.T) {
	invite, _ := json.Marshal(Invite{InviterName: "alice", GroupName: "gophers"})

	cases := []struct {
		msg  Message
		want string
	}{
		{msg: Message{Type: MessageText, Content: "hi"}, want: "hi"},
		{msg: Message{Type: MessageImage, Content: "//cdn/x.png"}, want: "[图片] https://cdn/x.png"},
		{msg: Message{Type: MessageCode, Content: "@language=go@x := 1"}, want: "[代码 go]\nx := 1"},
		{msg: Message{Type: MessageInvite, Content: string(invite)}, want: "[邀请] alice 邀请你加入群组 gophers"},
		{msg: Message{Type: MessageInvite, Content: "not json"}, want: "[邀请]"},
		{msg: Message{Type: "system", Content: "joined"}, want: "joined"},
	}

	for _, tc := range cases {
		if got := tc.msg.Summary("https://fiora.suisuijiang.com"); got != tc.want {
			t.Errorf("Summary(%s) = %q, want %q", tc.msg.Type, got, tc.want)
		}
	}
}

func TestUserConversationIDs(t *testing.T) {
	user := &User{
		ID:      "u2",
		Groups:  []Group{{ID: "g1"}, {ID: "g2"}},
		Friends: []Friend{{To: FriendUser{ID: "u1", Username: "bob"}}, {To: FriendUser{}}},
	}

	want := []string{"g1", "g2", "u1u2"}
	if got := user.ConversationIDs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("ConversationIDs = %v, want %v", got, want)
	}

	list := user.Conversations("https://x")
	if len(list) != 3 {
		t.Fatalf("expected 3 conversations, got %d", len(list))
	}
	if list[2].Kind != KindFriend || list[2].Name != "bob" {
		t.Fatalf("unexpected friend conversation: %+v", list[2])
	}

	var nilUser *User
	if nilUser.ConversationIDs() != nil {
		t.Fatal("expected nil ids for nil user")
	}
}

func TestDecodeMessage(t *testing.T) {
	raw := `{"_id":"m1","createTime":"2020-05-01T10:00:00.000Z","from":{"_id":"u1","tag":"","username":"alice","avatar":"//cdn/a.png"},"to":"g1","type":"text","content":"hello"}`

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal err: %v", err)
	}
	if msg.ID != "m1" || msg.From.Username != "alice" || msg.To != "g1" || msg.Type != MessageText {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.CreateTime.Year() != 2020 {
		t.Fatalf("unexpected create time: %v", msg.CreateTime)
	}
}
