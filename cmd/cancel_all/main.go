package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"standx-maker-go/config"
	"standx-maker-go/gateway"
)

// 应急撤单工具：撤掉配置交易对上的全部挂单。
// 任意一张撤单失败时以非零码退出，方便脚本串联。
func main() {
	cfgPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	client := gateway.NewClient(
		cfg.Gateway.BaseURL,
		cfg.Wallet.BearerToken(),
		cfg.Wallet.APISecret,
		time.Duration(cfg.Gateway.TimeoutSec)*time.Second,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Printf("🔸 查询 %s 挂单...\n", cfg.Symbol)
	orders, err := client.QueryOpenOrders(ctx, cfg.Symbol)
	if err != nil {
		log.Fatalf("查询挂单失败: %v", err)
	}
	if len(orders) == 0 {
		fmt.Println("✅ 没有挂单，无需处理")
		return
	}

	fmt.Printf("发现 %d 张挂单\n", len(orders))
	failed := 0
	for _, o := range orders {
		if err := client.CancelOrder(ctx, o.ClOrdID); err != nil {
			failed++
			fmt.Printf("❌ 撤单失败 %s (%s %.4f @ %.2f): %v\n",
				o.ClOrdID, o.Side, o.Qty, o.Price, err)
			continue
		}
		fmt.Printf("✅ 已撤单 %s (%s %.4f @ %.2f)\n",
			o.ClOrdID, o.Side, o.Qty, o.Price)
	}

	if failed > 0 {
		fmt.Printf("\n%d 张撤单失败，请人工检查\n", failed)
		os.Exit(1)
	}
	fmt.Println("\n✅ 所有挂单已撤销")
}
