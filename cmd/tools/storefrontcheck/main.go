package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/topup-bot/internal/config"
	"github.com/zhouzirui/topup-bot/internal/model/catalog"
	"github.com/zhouzirui/topup-bot/internal/model/topup"
	"github.com/zhouzirui/topup-bot/internal/model/voucher"
	"github.com/zhouzirui/topup-bot/internal/service/purchase"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	os.Exit(run())
}

// run 返回进程退出码，保证 defer 的浏览器清理在退出前执行。
func run() int {
	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Printf("配置加载失败: %v", err)
		return 1
	}

	uid := flag.String("uid", "", "游戏账号 UID")
	amount := flag.String("amount", string(catalog.Amount25), "面额代码，例如 amount_25")
	payment := flag.String("payment", string(catalog.PayUniPin), "支付渠道代码，例如 pay_unipin")
	code := flag.String("voucher", "", "Serial+PIN 文本")
	outputPath := flag.String("out", "proof.png", "成功截图输出路径")
	timeout := flag.Duration("timeout", 2*time.Minute, "整次尝试的超时时间")
	headful := flag.Bool("headful", false, "显示浏览器窗口")

	flag.Parse()

	if *uid == "" || *code == "" {
		flag.Usage()
		log.Print("请通过 -uid 和 -voucher 指定账号与卡密")
		return 2
	}

	parsed := voucher.Parse(*code)
	if err := parsed.Validate(); err != nil {
		log.Printf("卡密格式错误: %v", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	chromeOpts := cfg.Chrome.ChromeOptions()
	if *headful {
		chromeOpts.Headless = false
	}
	chrome := purchase.NewChrome(context.Background(), chromeOpts)
	defer chrome.Close()

	executor := purchase.NewExecutor(chrome, catalog.Default(), cfg.Storefront.ExecutorOptions())

	log.Printf("开始尝试: uid=%s amount=%s payment=%s voucher=%s", *uid, *amount, *payment, parsed)
	start := time.Now()

	outcome := executor.Execute(ctx, purchase.Request{
		AccountID: *uid,
		Amount:    catalog.AmountCode(*amount),
		Payment:   catalog.PaymentMethod(*payment),
		Voucher:   parsed,
	})

	if err := report(outcome, *outputPath); err != nil {
		log.Printf("%v (耗时 %s)", err, time.Since(start))
		return 1
	}
	log.Printf("完成，耗时 %s", time.Since(start))
	return 0
}

func report(outcome topup.Outcome, outputPath string) error {
	switch o := outcome.(type) {
	case topup.Success:
		if err := os.WriteFile(outputPath, o.Proof, 0o644); err != nil {
			return fmt.Errorf("写入截图失败: %w", err)
		}
		log.Printf("充值成功，截图已保存到 %s (%d 字节)", outputPath, len(o.Proof))
		return nil
	case topup.KnownFailure:
		return fmt.Errorf("商城返回失败: %s", o.Reason)
	case topup.UnknownFailure:
		return fmt.Errorf("结果未知: class=%s step=%s cause=%s", o.Class, o.Step, o.Cause)
	default:
		return fmt.Errorf("未识别的结果 %T", outcome)
	}
}
