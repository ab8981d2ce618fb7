package router

import (
	"github.com/gin-gonic/gin"

	"github.com/navid-fn/tradedesk/internal/handler"
)

func registerTradeRoutes(router *gin.RouterGroup, tradeHandler *handler.TradeHandler, splitHandler *handler.SplitHandler) {
	trades := router.Group("/trades")
	{
		trades.POST("", tradeHandler.Create)
		trades.GET("", tradeHandler.List)
		trades.GET("/:id", tradeHandler.Get)
		trades.PATCH("/:id/corrections", tradeHandler.UpdateCorrections)
		trades.POST("/:id/complete", tradeHandler.Complete)
		trades.POST("/:id/check", tradeHandler.Check)
		trades.POST("/:id/cancel", tradeHandler.Cancel)
	}

	splits := router.Group("/splits")
	{
		splits.POST("", splitHandler.Open)
		splits.GET("", splitHandler.List)
		splits.GET("/:id", splitHandler.Get)
		splits.POST("/:id/settle", splitHandler.Settle)
		splits.POST("/:id/refund", splitHandler.Refund)
	}
}

func registerAccountRoutes(router *gin.RouterGroup, accountHandler *handler.AccountHandler) {
	properties := router.Group("/properties")
	{
		properties.POST("", accountHandler.CreateProperty)
		properties.GET("", accountHandler.ListProperties)
		properties.GET("/:id", accountHandler.GetProperty)
		properties.GET("/:id/balance", accountHandler.PropertyBalance)
		properties.PATCH("/:id/init_amount", accountHandler.UpdatePropertyInitAmount)
	}

	stocks := router.Group("/stocks")
	{
		stocks.POST("", accountHandler.CreateStock)
		stocks.GET("", accountHandler.ListStocks)
		stocks.GET("/:id", accountHandler.GetStock)
		stocks.PATCH("/:id/init_amount", accountHandler.UpdateStockInitAmount)
	}
}

func registerMemberRoutes(router *gin.RouterGroup, memberHandler *handler.MemberHandler) {
	members := router.Group("/members")
	{
		members.POST("", memberHandler.Create)
		members.GET("", memberHandler.List)
		members.GET("/:id", memberHandler.Get)
		members.PATCH("/:id", memberHandler.Update)
		members.DELETE("/:id", memberHandler.Delete)
		members.POST("/:id/lists/:list", memberHandler.AddValue)
		members.DELETE("/:id/lists/:list", memberHandler.RemoveValue)
	}

	players := router.Group("/players")
	{
		players.POST("", memberHandler.CreatePlayer)
		players.GET("/:id", memberHandler.GetPlayer)
		players.PATCH("/:id", memberHandler.RenamePlayer)
		players.DELETE("/:id", memberHandler.DeletePlayer)
	}
}

func registerCatalogRoutes(router *gin.RouterGroup, gameHandler *handler.GameHandler, settingHandler *handler.SettingHandler) {
	games := router.Group("/games")
	{
		games.POST("", gameHandler.Create)
		games.GET("", gameHandler.List)
		games.GET("/:id", gameHandler.Get)
		games.PUT("/:id", gameHandler.Update)
	}

	settings := router.Group("/settings")
	{
		settings.GET("/:collection", settingHandler.Fields)
		settings.GET("/:collection/:field", settingHandler.Field)
		settings.POST("/members/communication_ways", settingHandler.AddCommunicationWay)
		settings.PUT("/trades/stage_fees/:kind", settingHandler.SetStageFee)
	}
}

func registerActivityRoutes(router *gin.RouterGroup, activityHandler *handler.ActivityHandler, lotteryHandler *handler.LotteryHandler, loginRecordHandler *handler.LoginRecordHandler) {
	activities := router.Group("/activities")
	{
		activities.POST("", activityHandler.Create)
		activities.GET("", activityHandler.List)
		activities.GET("/:id", activityHandler.Get)
		activities.PATCH("/:id", activityHandler.Update)
		activities.DELETE("/:id", activityHandler.Delete)
	}

	router.POST("/lotteries", lotteryHandler.Create)
	router.GET("/login_records", loginRecordHandler.List)
}

func registerPublicRoutes(router *gin.RouterGroup, lotteryHandler *handler.LotteryHandler) {
	lotteries := router.Group("/lotteries")
	{
		lotteries.GET("/:id", lotteryHandler.Get)
		lotteries.PATCH("/:id", lotteryHandler.Draw)
	}
}
