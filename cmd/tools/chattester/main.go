package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/fiora-client/backend/internal/config"
	model "github.com/zhouzirui/fiora-client/backend/internal/model/fiora"
	"github.com/zhouzirui/fiora-client/backend/internal/service/fiora"
	"github.com/zhouzirui/fiora-client/backend/internal/service/notify"
	"github.com/zhouzirui/fiora-client/backend/internal/service/output"
	"github.com/zhouzirui/fiora-client/backend/internal/service/socket"
	"github.com/zhouzirui/fiora-client/backend/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: login, history, send 或 listen")
	username := flag.String("user", cfg.Fiora.Username, "用户名，默认读取 FIORA_USERNAME")
	password := flag.String("password", cfg.Fiora.Password, "密码，默认读取 FIORA_PASSWORD")
	token := flag.String("token", "", "使用 token 登录，优先于用户名密码")
	to := flag.String("to", "", "send/history 模式的目标会话 ID，history 留空则输出全部会话")
	text := flag.String("text", "", "send 模式发送的内容")
	msgType := flag.String("type", string(model.MessageText), "send 模式的消息类型: text, image, code")
	logDir := flag.String("log-dir", "", "listen 模式下把每个会话写入该目录，留空则输出到终端")
	timeout := flag.Duration("timeout", 30*time.Second, "单次请求超时时间")

	flag.Parse()

	switch *mode {
	case "login", "history", "send", "listen":
	default:
		flag.Usage()
		log.Fatal("请通过 -mode=login|history|send|listen 指定测试模式")
	}

	hub := notify.NewHub(nil)
	opts := cfg.Fiora.ClientOptions("chattester")
	opts.Notifier = hub
	opts.Credentials = storage.NewMemoryStore("")
	if *timeout > 0 {
		opts.AckTimeout = *timeout
	}

	client := fiora.NewClient(socket.NewSession(cfg.Fiora.SocketOptions()), opts)
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	user := login(ctx, client, *token, *username, *password)
	log.Printf("登录成功: user=%s id=%s groups=%d friends=%d", user.Username, user.ID, len(user.Groups), len(user.Friends))

	switch *mode {
	case "login":
		printConversations(client)
	case "history":
		runHistory(client, *to)
	case "send":
		runSend(ctx, client, *to, *text, model.MessageType(*msgType))
	case "listen":
		runListen(ctx, client, *logDir)
	}
}

func login(ctx context.Context, client *fiora.Client, token, username, password string) *model.User {
	var (
		user *model.User
		err  error
	)
	switch {
	case token != "":
		log.Println("开始使用 token 登录")
		user, err = client.LoginByToken(ctx, token)
	case username != "" && password != "":
		log.Printf("开始登录: user=%s", username)
		user, err = client.Login(ctx, username, password)
	default:
		log.Fatal("需要通过 -token 或 -user/-password 提供登录凭据")
	}
	if err != nil {
		log.Fatalf("登录失败: %v", err)
	}
	if user == nil {
		log.Fatal("登录失败: 服务端没有返回用户资料")
	}
	return user
}

func printConversations(client *fiora.Client) {
	list, err := client.Conversations()
	if err != nil {
		log.Fatalf("获取会话列表失败: %v", err)
	}
	for _, c := range list {
		fmt.Printf("%-6s %-24s %s (未读 %d)\n", c.Kind, c.ID, c.Name, c.Unread)
	}
}

func runHistory(client *fiora.Client, to string) {
	list, err := client.Conversations()
	if err != nil {
		log.Fatalf("获取会话列表失败: %v", err)
	}

	panels := output.NewChannels(output.PrefixOpener(os.Stdout, labeler(list)), client.BaseURL(), nil)
	for _, c := range list {
		if to != "" && c.ID != to {
			continue
		}
		if err := panels.Replay(c.ID, client.Messages(c.ID)); err != nil {
			log.Fatalf("输出历史消息失败: %v", err)
		}
	}
}

func runSend(ctx context.Context, client *fiora.Client, to, text string, typ model.MessageType) {
	if to == "" {
		log.Fatal("send 模式需要通过 -to 指定会话 ID")
	}
	if strings.TrimSpace(text) == "" {
		log.Fatal("send 模式需要通过 -text 提供发送内容")
	}

	msg, err := client.SendMessage(ctx, to, text, typ)
	if err != nil {
		log.Fatalf("发送失败: %v", err)
	}
	log.Printf("发送成功: id=%s time=%s", msg.ID, msg.CreateTime.Format(time.RFC3339))
}

func runListen(ctx context.Context, client *fiora.Client, logDir string) {
	list, err := client.Conversations()
	if err != nil {
		log.Fatalf("获取会话列表失败: %v", err)
	}

	opener := output.PrefixOpener(os.Stdout, labeler(list))
	if logDir != "" {
		opener = output.DirOpener(logDir)
	}
	panels := output.NewChannels(opener, client.BaseURL(), nil)
	defer panels.Close()

	for _, c := range list {
		if err := panels.Replay(c.ID, client.Messages(c.ID)); err != nil {
			log.Printf("输出历史消息失败: %v", err)
		}
	}

	detach := panels.Attach(client.MessageEvents())
	defer detach()

	unsubscribe := client.StateEvents().Subscribe(func(state socket.State) {
		log.Printf("连接状态: %s", state)
	})
	defer unsubscribe()

	log.Println("正在监听新消息，Ctrl+C 退出")
	<-ctx.Done()
}

// labeler 会话 ID 到显示名的映射，输出形如 name[id]
func labeler(list []model.Conversation) func(string) string {
	names := make(map[string]string, len(list))
	for _, c := range list {
		names[c.ID] = c.Name
	}
	return func(id string) string {
		if name, ok := names[id]; ok {
			return fmt.Sprintf("%s[%s]", name, id)
		}
		return id
	}
}
