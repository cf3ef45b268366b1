package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/auth"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/dataset"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/editor"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/session"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/theme"
	"github.com/gorilla/mux"
)

type editorData struct {
	AppName  string
	Theme    theme.Mode
	Flashes  []session.Flash
	User     *auth.User
	Progress dataset.Progress
	Skipped  int
	Stale    bool

	Empty    bool
	Index    int
	Total    int
	Record   dataset.Record
	Pairs    []dataset.Pair
	Image    dataset.Image
	ImageRef int64 // cache buster for /image

	Draft               *session.Draft
	Temperature         float32
	GenerationAvailable bool
}

func (s *Server) handleEditor(w http.ResponseWriter, r *http.Request, st *session.State) {
	ed := s.opts.Editor
	data := editorData{
		AppName:             s.opts.AppName,
		Theme:               s.opts.Clock.Mode(s.now()),
		User:                st.User,
		Progress:            ed.Progress(st),
		Skipped:             st.Store.Stats().Skipped,
		Stale:               ed.Stale(st),
		Total:               st.Store.Len(),
		Draft:               st.Draft,
		Temperature:         st.Temperature,
		GenerationAvailable: ed.GenerationAvailable(),
	}

	if rec, ok := ed.Current(st); ok {
		data.Index = st.Index
		data.Record = rec
		data.Pairs = rec.Pairs()
		data.Image = dataset.InspectImage(rec.ImagePath)
		data.ImageRef = s.now().UnixNano()
	} else {
		data.Empty = true
	}
	data.Flashes = st.TakeFlashes()

	s.renderPage(w, "editor.html", data)
}

func (s *Server) handleGoto(w http.ResponseWriter, r *http.Request, st *session.State) {
	i, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	// Records are numbered from 1 in the UI.
	if err := s.opts.Editor.Goto(st, i-1); err != nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.handleEditor(w, r, st)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request, st *session.State) {
	rec, ok := s.opts.Editor.Current(st)
	if !ok {
		http.NotFound(w, r)
		return
	}
	img := dataset.InspectImage(rec.ImagePath)
	if !img.Exists {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", img.MIME)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, img.Path)
}

func (s *Server) handleLogo(w http.ResponseWriter, r *http.Request) {
	path := s.opts.Clock.Pick(s.opts.LogoLight, s.opts.LogoDark, s.now())
	if path == "" {
		http.NotFound(w, r)
		return
	}
	if img := dataset.InspectImage(path); !img.Exists {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.opts.Sessions.Len(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, st *session.State) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := s.opts.Editor.Login(st, r.FormValue("username"), r.FormValue("password")); err != nil {
		s.flashError(st, err)
	} else {
		st.AddFlash(session.LevelSuccess, "登入成功！")
	}
	s.redirectHome(w, r)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, st *session.State) {
	s.opts.Editor.Logout(st)
	s.redirectHome(w, r)
}

func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request, st *session.State) {
	if !s.opts.Editor.RandomEmpty(st) {
		st.AddFlash(session.LevelInfo, "沒有 messages 為空的資料。")
	}
	s.redirectHome(w, r)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request, st *session.State) {
	if err := s.opts.Editor.Next(st); err != nil {
		s.flashError(st, err)
	}
	s.redirectHome(w, r)
}

func (s *Server) handlePrev(w http.ResponseWriter, r *http.Request, st *session.State) {
	if err := s.opts.Editor.Prev(st); err != nil {
		s.flashError(st, err)
	}
	s.redirectHome(w, r)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, st *session.State) {
	if _, err := s.opts.Editor.Generate(r.Context(), st); err != nil {
		s.flashError(st, err)
	} else {
		st.AddFlash(session.LevelInfo, fmt.Sprintf("草稿已產生，可編輯後存檔或取消。（temperature=%.2f）", st.Temperature))
	}
	s.redirectHome(w, r)
}

func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request, st *session.State) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := s.checkRecord(r, st); err != nil {
		s.flashError(st, err)
		s.redirectHome(w, r)
		return
	}
	if st.Draft != nil {
		// Keep the user's edits if the save is rejected.
		st.Draft.Question = r.FormValue("question")
		st.Draft.Answer = r.FormValue("answer")
	}
	if err := s.opts.Editor.SaveDraft(st, r.FormValue("question"), r.FormValue("answer")); err != nil {
		s.flashError(st, err)
	} else {
		st.AddFlash(session.LevelSuccess, "已存檔！")
	}
	s.redirectHome(w, r)
}

func (s *Server) handleDiscardDraft(w http.ResponseWriter, r *http.Request, st *session.State) {
	if err := s.checkRecord(r, st); err != nil {
		s.flashError(st, err)
		s.redirectHome(w, r)
		return
	}
	s.opts.Editor.DiscardDraft(st)
	st.AddFlash(session.LevelSuccess, "已丟棄草稿。")
	s.redirectHome(w, r)
}

func (s *Server) handleEditPair(w http.ResponseWriter, r *http.Request, st *session.State) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := s.checkRecord(r, st); err != nil {
		s.flashError(st, err)
		s.redirectHome(w, r)
		return
	}
	pos, _ := strconv.Atoi(mux.Vars(r)["pos"])
	if err := s.opts.Editor.EditPair(st, pos, r.FormValue("question"), r.FormValue("answer")); err != nil {
		s.flashError(st, err)
	} else {
		st.AddFlash(session.LevelSuccess, "已更新並寫回檔案。")
	}
	s.redirectHome(w, r)
}

func (s *Server) handleDeletePair(w http.ResponseWriter, r *http.Request, st *session.State) {
	if err := s.checkRecord(r, st); err != nil {
		s.flashError(st, err)
		s.redirectHome(w, r)
		return
	}
	pos, _ := strconv.Atoi(mux.Vars(r)["pos"])
	if err := s.opts.Editor.DeletePair(st, pos); err != nil {
		s.flashError(st, err)
	} else {
		st.AddFlash(session.LevelSuccess, "已刪除該筆對話。")
	}
	s.redirectHome(w, r)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request, st *session.State) {
	if err := s.opts.Editor.Reload(st); err != nil {
		s.flashError(st, err)
	} else {
		st.AddFlash(session.LevelSuccess, "已重新載入。")
	}
	s.redirectHome(w, r)
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request, st *session.State) {
	if err := s.opts.Editor.Rewrite(st); err != nil {
		s.flashError(st, err)
	} else {
		st.AddFlash(session.LevelSuccess, "已寫回檔案。")
	}
	s.redirectHome(w, r)
}

// checkRecord matches the 1-based record in the route against the cursor.
func (s *Server) checkRecord(r *http.Request, st *session.State) error {
	i, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		return editor.ErrRecordChanged
	}
	return s.opts.Editor.CheckRecord(st, i-1)
}

func (s *Server) redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// flashError turns an editor error into a message for the next render.
func (s *Server) flashError(st *session.State, err error) {
	switch {
	case errors.Is(err, editor.ErrNotLoggedIn):
		st.AddFlash(session.LevelWarning, "請先登入，才能新增/存檔。")
	case errors.Is(err, editor.ErrInvalidCredentials):
		st.AddFlash(session.LevelError, "登入失敗，請檢查帳密。")
	case errors.Is(err, editor.ErrTooManyAttempts):
		st.AddFlash(session.LevelError, "登入嘗試次數過多，請稍後再試。")
	case errors.Is(err, editor.ErrNoGenerator):
		st.AddFlash(session.LevelError, "尚未設定 API（請在 .streamlit/secrets.toml 放入 MY_API_BASE / OPENAI_API_KEY）。")
	case errors.Is(err, editor.ErrDraftPending):
		st.AddFlash(session.LevelInfo, "草稿已產生，可編輯後存檔或取消。")
	case errors.Is(err, editor.ErrEmptyDraft):
		st.AddFlash(session.LevelWarning, "問題與答案不可為空。")
	case errors.Is(err, editor.ErrNoDraft):
		st.AddFlash(session.LevelWarning, "目前沒有草稿。")
	case errors.Is(err, editor.ErrNoRecords):
		st.AddFlash(session.LevelWarning, "資料為空，請準備 data.jsonl。")
	case errors.Is(err, editor.ErrRecordChanged):
		st.AddFlash(session.LevelWarning, "頁面上的資料已切換，請重新整理後再操作。")
	case errors.Is(err, editor.ErrPairNotFound):
		st.AddFlash(session.LevelWarning, "找不到該筆對話，請重新整理。")
	case editor.IsPersistenceError(err):
		st.AddFlash(session.LevelError, "存檔失敗："+err.Error())
	default:
		s.logger.Error().Err(err).Str("session", st.ID).Msg("request failed")
		st.AddFlash(session.LevelError, err.Error())
	}
}
