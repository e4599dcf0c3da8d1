// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

//go:build integration

package auth_test

import (
	"net/http"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/trailhead/trailhead/internal/auth"
)

var _ = Describe("Account flows", func() {
	Describe("signup and login", func() {
		It("issues tokens that reach protected routes", func() {
			email := uniqueEmail("walker")
			token := signup("Walker", email, "pass1234")

			me := call(http.MethodGet, "/me", nil, token)
			Expect(me.Status).To(Equal(http.StatusOK))

			login := call(http.MethodPost, "/login", map[string]any{"email": email, "password": "pass1234"}, "")
			Expect(login.Status).To(Equal(http.StatusOK))
			Expect(call(http.MethodGet, "/me", nil, login.Body["token"].(string)).Status).To(Equal(http.StatusOK))
		})

		It("fails identically for an unknown email, a wrong password and a missing field", func() {
			email := uniqueEmail("walker")
			signup("Walker", email, "pass1234")

			wrong := call(http.MethodPost, "/login", map[string]any{"email": email, "password": "wrongpass"}, "")
			unknown := call(http.MethodPost, "/login", map[string]any{"email": uniqueEmail("ghost"), "password": "pass1234"}, "")
			missing := call(http.MethodPost, "/login", map[string]any{"email": email}, "")

			Expect(wrong.Status).To(Equal(http.StatusUnauthorized))
			Expect(unknown).To(Equal(wrong))
			Expect(missing).To(Equal(wrong))
		})

		It("rejects a duplicate email regardless of case", func() {
			email := uniqueEmail("walker")
			signup("Walker", email, "pass1234")

			res := call(http.MethodPost, "/signup", map[string]any{
				"name": "Other", "email": " " + email + " ", "password": "pass1234", "passwordConfirm": "pass1234",
			}, "")
			Expect(res.Status).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("password changes", func() {
		It("invalidates tokens issued before the change", func() {
			email := uniqueEmail("walker")
			old := signup("Walker", email, "pass1234")

			env.clock.Advance(2 * time.Second)
			res := call(http.MethodPatch, "/updatepassword", map[string]any{
				"passwordCurrent": "pass1234", "password": "newpass12", "passwordConfirm": "newpass12",
			}, old)
			Expect(res.Status).To(Equal(http.StatusOK))
			fresh := res.Body["token"].(string)

			Expect(call(http.MethodGet, "/me", nil, old).Status).To(Equal(http.StatusUnauthorized))
			Expect(call(http.MethodGet, "/me", nil, fresh).Status).To(Equal(http.StatusOK))

			stored, err := env.users.GetByEmail(env.ctx, email)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.PasswordChangedAt).NotTo(BeNil())
			Expect(*stored.PasswordChangedAt).To(BeTemporally("==", env.clock.Now().Add(-auth.PasswordChangeBackdate)))
		})
	})

	Describe("password reset", func() {
		It("redeems a reset token exactly once under concurrent requests", func() {
			email := uniqueEmail("walker")
			signup("Walker", email, "pass1234")
			Expect(call(http.MethodPost, "/forgotpassword", map[string]any{"email": email}, "").Status).To(Equal(http.StatusOK))
			secret := resetSecret(email)

			const attempts = 8
			statuses := make(chan int, attempts)
			var wg sync.WaitGroup
			for range attempts {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					statuses <- call(http.MethodPatch, "/resetpassword/"+secret, map[string]any{
						"password": "resetpass1", "passwordConfirm": "resetpass1",
					}, "").Status
				}()
			}
			wg.Wait()
			close(statuses)

			counts := map[int]int{}
			for s := range statuses {
				counts[s]++
			}
			Expect(counts).To(Equal(map[int]int{http.StatusOK: 1, http.StatusBadRequest: attempts - 1}))

			login := call(http.MethodPost, "/login", map[string]any{"email": email, "password": "resetpass1"}, "")
			Expect(login.Status).To(Equal(http.StatusOK))
		})

		It("expires a reset token after the window", func() {
			email := uniqueEmail("walker")
			signup("Walker", email, "pass1234")
			Expect(call(http.MethodPost, "/forgotpassword", map[string]any{"email": email}, "").Status).To(Equal(http.StatusOK))
			secret := resetSecret(email)

			Expect(call(http.MethodGet, "/resetpassword/"+secret, nil, "").Status).To(Equal(http.StatusOK))

			env.clock.Advance(auth.DefaultResetWindow + time.Second)
			res := call(http.MethodPatch, "/resetpassword/"+secret, map[string]any{
				"password": "resetpass1", "passwordConfirm": "resetpass1",
			}, "")
			Expect(res.Status).To(Equal(http.StatusBadRequest))
			Expect(res.Body["message"]).To(Equal("token is invalid or has expired"))
		})

		It("replaces an outstanding token when a new one is requested", func() {
			email := uniqueEmail("walker")
			signup("Walker", email, "pass1234")

			Expect(call(http.MethodPost, "/forgotpassword", map[string]any{"email": email}, "").Status).To(Equal(http.StatusOK))
			first := resetSecret(email)
			Expect(call(http.MethodPost, "/forgotpassword", map[string]any{"email": email}, "").Status).To(Equal(http.StatusOK))
			second := resetSecret(email)

			Expect(second).NotTo(Equal(first))
			Expect(call(http.MethodGet, "/resetpassword/"+first, nil, "").Status).To(Equal(http.StatusBadRequest))
			Expect(call(http.MethodGet, "/resetpassword/"+second, nil, "").Status).To(Equal(http.StatusOK))
		})
	})

	Describe("access control", func() {
		It("restricts the user list to admins and lead guides", func() {
			walker := signup("Walker", uniqueEmail("walker"), "pass1234")
			Expect(call(http.MethodGet, "/", nil, walker).Status).To(Equal(http.StatusForbidden))

			leadEmail := uniqueEmail("lead")
			lead := signup("Lead", leadEmail, "pass1234")
			_, err := env.svc.SetRole(env.ctx, leadEmail, auth.RoleLeadGuide)
			Expect(err).NotTo(HaveOccurred())

			res := call(http.MethodGet, "/", nil, lead)
			Expect(res.Status).To(Equal(http.StatusOK), "role comes from the store, not the token")
			Expect(res.Body["results"]).To(BeNumerically(">=", 2))
		})

		It("stops authenticating a deactivated user", func() {
			email := uniqueEmail("walker")
			token := signup("Walker", email, "pass1234")

			Expect(call(http.MethodDelete, "/deleteme", nil, token).Status).To(Equal(http.StatusNoContent))
			Expect(call(http.MethodGet, "/me", nil, token).Status).To(Equal(http.StatusUnauthorized))

			login := call(http.MethodPost, "/login", map[string]any{"email": email, "password": "pass1234"}, "")
			Expect(login.Status).To(Equal(http.StatusUnauthorized))
		})
	})
})
