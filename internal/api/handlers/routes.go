package handlers

import "github.com/gofiber/fiber/v2"

// Register mounts all API routes on r.
func Register(r fiber.Router, accounts *AccountHandler, assets *AssetHandler, jobs *JobHandler) {
	r.Post("/accounts", accounts.CreateAccount)
	r.Get("/accounts", accounts.ListAccounts)
	r.Get("/accounts/stats", accounts.AccountStats)
	r.Put("/accounts/:id", accounts.UpdateAccount)
	r.Delete("/accounts/:id", accounts.DeleteAccount)
	r.Post("/accounts/:id/test", accounts.TestAccount)

	r.Post("/assets/upload", assets.UploadAsset)
	r.Get("/assets", assets.ListAssets)
	r.Get("/assets/:id", assets.GetAsset)
	r.Post("/assets/:id/process", assets.ProcessAsset)
	r.Delete("/assets/:id", assets.DeleteAsset)
	r.Post("/assets/:id/post", assets.PostAsset)

	r.Get("/jobs", jobs.ListJobs)
	r.Get("/jobs/stats", jobs.JobStats)
	r.Get("/jobs/queue", jobs.Queue)
	r.Post("/jobs/process", jobs.ProcessJobs)
	r.Get("/jobs/:id", jobs.GetJob)
	r.Post("/jobs/:id/retry", jobs.RetryJob)
	r.Post("/jobs/:id/cancel", jobs.CancelJob)
}
