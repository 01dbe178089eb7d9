package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/ids"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/repository"
)

// SeedService генерирует фейковые данные для тестирования: клиентов,
// проекты и согласования в разных состояниях. Доступен только вне
// production-окружения.
type SeedService struct {
	clientRepo   *repository.ClientRepository
	projectRepo  *repository.ProjectRepository
	approvalRepo *repository.ApprovalRepository
}

// NewSeedService создаёт новый сервис для генерации данных.
func NewSeedService(
	clientRepo *repository.ClientRepository,
	projectRepo *repository.ProjectRepository,
	approvalRepo *repository.ApprovalRepository,
) *SeedService {
	return &SeedService{
		clientRepo:   clientRepo,
		projectRepo:  projectRepo,
		approvalRepo: approvalRepo,
	}
}

// SeedData наполняет организацию фейковыми клиентами, проектами
// и согласованиями.
func (s *SeedService) SeedData(ctx context.Context, orgID uuid.UUID, numClients, numProjects int) error {
	clients, err := s.generateClients(ctx, orgID, numClients)
	if err != nil {
		return fmt.Errorf("seed service: failed to generate clients: %w", err)
	}

	projects, err := s.generateProjects(ctx, orgID, clients, numProjects)
	if err != nil {
		return fmt.Errorf("seed service: failed to generate projects: %w", err)
	}

	if err := s.generateApprovals(ctx, orgID, projects); err != nil {
		return fmt.Errorf("seed service: failed to generate approvals: %w", err)
	}

	return nil
}

// generateClients создаёт фейковых клиентов.
func (s *SeedService) generateClients(ctx context.Context, orgID uuid.UUID, count int) ([]*models.Client, error) {
	firstNames := []string{
		"Александр", "Дмитрий", "Максим", "Сергей", "Андрей", "Алексей",
		"Анна", "Мария", "Елена", "Ольга", "Татьяна", "Наталья",
		"Екатерина", "Юлия", "Анастасия", "Дарья", "Виктория", "Полина",
	}
	lastNames := []string{
		"Иванов", "Петров", "Смирнов", "Козлов", "Соколов", "Попов",
		"Лебедев", "Новиков", "Морозов", "Волков", "Васильев", "Павлов",
	}
	companies := []string{
		"ООО «Альфа Девелопмент»", "ООО «Северный берег»", "ИП Горизонт",
		"ООО «Стройинвест»", "ГК «Меридиан»", "",
	}
	domains := []string{"gmail.com", "yandex.ru", "mail.ru", "outlook.com"}

	var clients []*models.Client
	for i := 0; i < count; i++ {
		firstName := firstNames[rand.Intn(len(firstNames))]
		lastName := lastNames[rand.Intn(len(lastNames))]
		email := fmt.Sprintf("%s.%s.%d@%s",
			toLatin(firstName), toLatin(lastName), rand.Intn(10000), domains[rand.Intn(len(domains))])

		client := &models.Client{
			OrgID: orgID,
			Name:  fmt.Sprintf("%s %s", firstName, lastName),
			Email: email,
		}

		if rand.Float32() > 0.3 {
			phone := fmt.Sprintf("+7 (9%02d) %03d-%02d-%02d",
				rand.Intn(100), rand.Intn(1000), rand.Intn(100), rand.Intn(100))
			client.Phone = &phone
		}
		if company := companies[rand.Intn(len(companies))]; company != "" {
			client.Company = &company
		}

		if err := s.clientRepo.Create(ctx, client); err != nil {
			return nil, fmt.Errorf("failed to create client: %w", err)
		}

		clients = append(clients, client)
	}

	return clients, nil
}

// generateProjects создаёт фейковые проекты.
func (s *SeedService) generateProjects(ctx context.Context, orgID uuid.UUID, clients []*models.Client, count int) ([]*models.Project, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("no clients available to create projects")
	}

	names := []string{
		"Квартира на Патриарших", "Дом в Подмосковье", "Офис IT-компании",
		"Пентхаус в Москва-Сити", "Загородный дом в Репино", "Шоурум на Тверской",
		"Таунхаус в Новой Риге", "Студия на Васильевском", "Ресторан на набережной",
		"Квартира для молодой семьи", "Лофт в бывшем цехе", "Кафе во дворике",
	}
	streets := []string{
		"Большой Патриарший пер.", "Тверская ул.", "Невский пр.",
		"Кутузовский пр.", "Ленинский пр.", "Садовая ул.",
	}
	stages := []string{
		models.ProjectStageConcept,
		models.ProjectStageSchematic,
		models.ProjectStageDesignDevelopment,
		models.ProjectStageDocumentation,
		models.ProjectStageConstruction,
	}

	var projects []*models.Project
	for i := 0; i < count; i++ {
		client := clients[rand.Intn(len(clients))]

		project := &models.Project{
			OrgID:    orgID,
			ClientID: client.ID,
			Name:     names[rand.Intn(len(names))],
			Stage:    stages[rand.Intn(len(stages))],
			Status:   models.ProjectStatusActive,
		}

		if rand.Float32() > 0.2 {
			address := fmt.Sprintf("%s, д. %d", streets[rand.Intn(len(streets))], rand.Intn(60)+1)
			project.Address = &address
		}

		if err := s.projectRepo.Create(ctx, project); err != nil {
			return nil, fmt.Errorf("failed to create project: %w", err)
		}

		projects = append(projects, project)
	}

	return projects, nil
}

// generateApprovals создаёт согласования в разных состояниях:
// черновики, отправленные, просмотренные, отвеченные и просроченные.
func (s *SeedService) generateApprovals(ctx context.Context, orgID uuid.UUID, projects []*models.Project) error {
	titles := []string{
		"Планировочное решение, вариант 2",
		"Концепция интерьера гостиной",
		"Подбор отделочных материалов",
		"Схема расстановки мебели",
		"Визуализация кухни-столовой",
		"Чертежи перегородок, лист 1-4",
		"Схема освещения и выключателей",
		"Смета на черновые работы",
		"Колористическое решение фасада",
		"План демонтажа, ревизия B",
	}
	notes := []string{
		"Просьба увеличить зону хранения в прихожей.",
		"Хотелось бы рассмотреть более тёплую палитру.",
		"Перенесите, пожалуйста, розетки у изголовья кровати.",
		"Смущает высота подвесного потолка в коридоре.",
	}

	now := time.Now()

	for _, project := range projects {
		numApprovals := rand.Intn(3) + 1
		for i := 0; i < numApprovals; i++ {
			approval := &models.Approval{
				OrgID:     orgID,
				ProjectID: project.ID,
				Token:     ids.NewToken(),
				Title:     titles[rand.Intn(len(titles))],
				Status:    models.ApprovalStatusPending,
				Version:   1,
				ExpiresAt: now.Add(time.Duration(rand.Intn(14)-3) * 24 * time.Hour),
			}

			if err := s.approvalRepo.Create(ctx, approval); err != nil {
				return fmt.Errorf("failed to create approval: %w", err)
			}

			// Часть остаётся черновиками, остальные отправлены.
			if rand.Float32() < 0.2 {
				continue
			}
			sentAt := now.Add(-time.Duration(rand.Intn(10)+1) * 24 * time.Hour)
			if err := s.approvalRepo.MarkSent(ctx, approval.ID, sentAt); err != nil {
				return fmt.Errorf("failed to mark approval sent: %w", err)
			}

			views := rand.Intn(4)
			for v := 0; v < views; v++ {
				viewedAt := sentAt.Add(time.Duration(rand.Intn(72)+1) * time.Hour)
				if err := s.approvalRepo.RecordView(ctx, approval.ID, viewedAt); err != nil {
					return fmt.Errorf("failed to record view: %w", err)
				}
			}

			// Часть просмотренных получает ответ клиента.
			if views == 0 || rand.Float32() < 0.4 {
				continue
			}
			respondedAt := sentAt.Add(time.Duration(rand.Intn(96)+2) * time.Hour)
			if respondedAt.After(now) {
				respondedAt = now
			}
			status := models.ApprovalStatusApproved
			var responseNotes *string
			if rand.Float32() < 0.35 {
				status = models.ApprovalStatusChangesRequested
				note := notes[rand.Intn(len(notes))]
				responseNotes = &note
			}
			if _, err := s.approvalRepo.Respond(ctx, approval.ID, status, responseNotes, respondedAt); err != nil {
				return fmt.Errorf("failed to respond approval: %w", err)
			}
		}
	}

	return nil
}

// toLatin транслитерирует русские имена в латиницу для email.
func toLatin(s string) string {
	translit := map[rune]string{
		'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "yo",
		'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m",
		'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
		'ф': "f", 'х': "h", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "sch",
		'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
		'А': "A", 'Б': "B", 'В': "V", 'Г': "G", 'Д': "D", 'Е': "E", 'Ё': "Yo",
		'Ж': "Zh", 'З': "Z", 'И': "I", 'Й': "Y", 'К': "K", 'Л': "L", 'М': "M",
		'Н': "N", 'О': "O", 'П': "P", 'Р': "R", 'С': "S", 'Т': "T", 'У': "U",
		'Ф': "F", 'Х': "H", 'Ц': "Ts", 'Ч': "Ch", 'Ш': "Sh", 'Щ': "Sch",
		'Ъ': "", 'Ы': "Y", 'Ь': "", 'Э': "E", 'Ю': "Yu", 'Я': "Ya",
	}

	result := ""
	for _, r := range s {
		if val, ok := translit[r]; ok {
			result += val
		} else {
			result += string(r)
		}
	}
	return result
}
