package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
)

func main() {
	baseURL := "http://localhost:8080"
	if v := os.Getenv("FALL_DETECTOR_URL"); v != "" {
		baseURL = strings.TrimRight(v, "/")
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Minute)

	// Проверяем health endpoint
	fmt.Println("Проверяем health endpoint...")
	resp, err := client.R().Get("/api/v1/health")
	if err != nil {
		fmt.Printf("Ошибка при обращении к health endpoint: %v\n", err)
		return
	}
	fmt.Printf("Health check ответ (статус %d):\n%s\n\n", resp.StatusCode(), resp.String())

	if len(os.Args) < 2 {
		fmt.Println("Для тестирования обработки запустите: test-client <путь_к_видео или каталогу кадров>")
		return
	}

	sessionID, err := startSession(client, os.Args[1])
	if err != nil {
		fmt.Printf("Ошибка запуска сессии: %v\n", err)
		return
	}
	fmt.Printf("Сессия %s запущена\n", sessionID)

	if err := follow(baseURL, sessionID); err != nil {
		fmt.Printf("Поток прогресса недоступен: %v\n", err)
	}

	resp, err = client.R().Get("/api/v1/sessions/" + sessionID + "/report")
	if err != nil {
		fmt.Printf("Ошибка получения отчета: %v\n", err)
		return
	}
	fmt.Printf("Отчет (статус %d):\n%s\n", resp.StatusCode(), resp.String())
}

// startSession каталог передается как source_path, файл загружается
func startSession(client *resty.Client, path string) (string, error) {
	req := client.R()
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		abs, _ := filepath.Abs(path)
		req.SetBody(map[string]string{"source_path": abs})
	} else {
		req.SetFile("video", path)
	}

	var info struct {
		ID string `json:"id"`
	}
	resp, err := req.SetResult(&info).Post("/api/v1/sessions")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("статус %d: %s", resp.StatusCode(), resp.String())
	}
	return info.ID, nil
}

// follow печатает прогресс и рекомендации до завершения сессии
func follow(baseURL, sessionID string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/api/v1/sessions/" + sessionID + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}

		switch msg.Type {
		case "STATUS":
			var st struct {
				Status   string `json:"status"`
				Progress int    `json:"progress"`
				Message  string `json:"message"`
			}
			_ = json.Unmarshal(msg.Payload, &st)
			fmt.Printf("[%3d%%] %s: %s\n", st.Progress, st.Status, st.Message)
		case "ADVISORY":
			var adv struct {
				Sequence uint64 `json:"sequence"`
				Text     string `json:"text"`
				Error    string `json:"error"`
			}
			_ = json.Unmarshal(msg.Payload, &adv)
			if adv.Error != "" {
				fmt.Printf("Рекомендация #%d: ошибка %s\n", adv.Sequence, adv.Error)
			} else {
				fmt.Printf("Рекомендация #%d:\n%s\n", adv.Sequence, adv.Text)
			}
		}
	}
}
