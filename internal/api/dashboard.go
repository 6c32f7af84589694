// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Dashboard registers GET /stats, the temp-asset counts shown by the
// operations dashboard.
func Dashboard(r gin.IRouter, stats StatsSource) {
	r.GET("/stats", func(c *gin.Context) {
		if stats == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, stats.Stats())
	})
}
